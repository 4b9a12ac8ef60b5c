//go:build !linux

package ipmi

import (
	"time"

	"codeberg.org/mutker/smfd/internal/errors"
)

func openDevice(path string, _ time.Duration) (Transport, error) {
	return nil, errors.New().WithData(ErrUnsupported, path)
}
