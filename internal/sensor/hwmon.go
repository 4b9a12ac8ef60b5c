package sensor

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/logger"
)

const (
	milliDegrees = 1000

	plausibleMin = 0
	plausibleMax = 120
)

// HwmonInput is a sysfs temperature input reporting millidegrees Celsius.
// The file stays open for the life of the daemon and is re-read from the
// start on every Read.
type HwmonInput struct {
	name string
	path string
	file *os.File
}

func OpenHwmonInput(name, path string) (*HwmonInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New().WithData(ErrOpenInput, struct {
			Sensor string
			Path   string
			Error  string
		}{
			Sensor: name,
			Path:   path,
			Error:  err.Error(),
		})
	}

	return &HwmonInput{name: name, path: path, file: f}, nil
}

func (h *HwmonInput) Name() string {
	return h.name
}

func (h *HwmonInput) Read(_ context.Context) (int, error) {
	errFactory := errors.New()

	buf := make([]byte, 32)
	n, err := h.file.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return 0, errFactory.WithData(ErrReadInput, struct {
			Sensor string
			Path   string
			Error  string
		}{
			Sensor: h.name,
			Path:   h.path,
			Error:  err.Error(),
		})
	}

	text := strings.TrimSpace(string(buf[:n]))
	milli, err := strconv.Atoi(text)
	if err != nil {
		return 0, errFactory.WithData(ErrParseReading, struct {
			Sensor string
			Value  string
		}{
			Sensor: h.name,
			Value:  text,
		})
	}

	temp := (milli + milliDegrees/2) / milliDegrees
	if temp < plausibleMin || temp > plausibleMax {
		logger.Warn().
			Str("sensor", h.name).
			Int("temperature", temp).
			Msg("Temperature reading is probably garbage")
	}

	return temp, nil
}

func (h *HwmonInput) Close() error {
	return h.file.Close()
}
