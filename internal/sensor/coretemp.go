package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/logger"
)

const maxCoretempInputs = 99

// OpenCoretemps opens every labelled temperature input of the coretemp
// hwmon directory. dir may be a glob; the first match is used.
func OpenCoretemps(dir string) ([]*HwmonInput, error) {
	errFactory := errors.New()

	matches, err := filepath.Glob(dir)
	if err != nil || len(matches) == 0 {
		return nil, errFactory.WithData(ErrNoCoretemps, struct {
			Dir string
		}{
			Dir: dir,
		})
	}
	sort.Strings(matches)
	hwmon := matches[0]

	var inputs []*HwmonInput
	for i := 1; i <= maxCoretempInputs; i++ {
		label, err := os.ReadFile(filepath.Join(hwmon, fmt.Sprintf("temp%d_label", i)))
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			closeAll(inputs)
			return nil, errFactory.WithData(ErrOpenInput, struct {
				Dir   string
				Index int
				Error string
			}{
				Dir:   hwmon,
				Index: i,
				Error: err.Error(),
			})
		}

		input, err := OpenHwmonInput(
			strings.TrimSpace(string(label)),
			filepath.Join(hwmon, fmt.Sprintf("temp%d_input", i)),
		)
		if err != nil {
			closeAll(inputs)
			return nil, err
		}
		inputs = append(inputs, input)
	}

	if len(inputs) == 0 {
		return nil, errFactory.WithData(ErrNoCoretemps, struct {
			Dir string
		}{
			Dir: hwmon,
		})
	}

	logger.Debug().
		Str("dir", hwmon).
		Int("inputs", len(inputs)).
		Msg("Found coretemp inputs")

	return inputs, nil
}

func closeAll(inputs []*HwmonInput) {
	for _, in := range inputs {
		in.Close()
	}
}
