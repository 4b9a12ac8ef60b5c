package control

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"

	"codeberg.org/mutker/smfd/internal/logger"
)

// Flags carries signal requests from the signal handler to the loop. The
// loop services them at the start of each tick.
type Flags struct {
	debug atomic.Bool
	dump  atomic.Bool
}

func (f *Flags) RequestDebugToggle() {
	f.debug.Store(true)
}

func (f *Flags) RequestDump() {
	f.dump.Store(true)
}

// HandleSignals records SIGUSR1 and SIGUSR2 in flags and returns when a
// termination signal arrives or ctx is done.
func HandleSignals(ctx context.Context, flags *Flags, sigs <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				flags.RequestDebugToggle()
			case syscall.SIGUSR2:
				flags.RequestDump()
			case syscall.SIGTERM, syscall.SIGINT:
				logger.Info().Str("signal", sig.String()).Msg("Got shutdown signal")
				return nil
			}
		}
	}
}
