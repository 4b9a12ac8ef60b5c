package control

import (
	"context"
	"os"

	"codeberg.org/mutker/smfd/internal/errors"
	"github.com/oklog/run"
)

// errShutdown ends the signal actor so the group interrupts the loop.
var errShutdown = errors.New().New(errors.ErrShutdownRequested)

// Supervise runs the loop and the signal handler until a termination signal
// arrives or the loop fails. A loop error always wins, including one from the
// tick that was in progress when the signal arrived.
func Supervise(ctx context.Context, loop *Loop, flags *Flags, sigs <-chan os.Signal) error {
	loopCtx, loopCancel := context.WithCancel(ctx)
	sigCtx, sigCancel := context.WithCancel(ctx)

	var loopErr error

	var g run.Group
	g.Add(func() error {
		loopErr = loop.Run(loopCtx)
		return loopErr
	}, func(error) {
		loopCancel()
	})
	g.Add(func() error {
		if err := HandleSignals(sigCtx, flags, sigs); err != nil {
			return err
		}
		return errShutdown
	}, func(error) {
		sigCancel()
	})

	err := g.Run()
	if loopErr != nil {
		return loopErr
	}
	if errors.Is(err, errShutdown) {
		return nil
	}

	return err
}
