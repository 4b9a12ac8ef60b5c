package sensor

import "context"

// Source produces whole-degree Celsius temperature readings.
type Source interface {
	Name() string
	Read(ctx context.Context) (int, error)
	Close() error
}
