package control

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSignalsRecordsFlags(t *testing.T) {
	flags := &Flags{}
	sigs := make(chan os.Signal, 3)
	sigs <- syscall.SIGUSR1
	sigs <- syscall.SIGUSR2
	sigs <- syscall.SIGTERM

	require.NoError(t, HandleSignals(context.Background(), flags, sigs))
	assert.True(t, flags.debug.Load())
	assert.True(t, flags.dump.Load())
}

func TestHandleSignalsStopsOnInterrupt(t *testing.T) {
	flags := &Flags{}
	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGINT

	require.NoError(t, HandleSignals(context.Background(), flags, sigs))
	assert.False(t, flags.debug.Load())
	assert.False(t, flags.dump.Load())
}

func TestHandleSignalsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- HandleSignals(ctx, &Flags{}, make(chan os.Signal)) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("HandleSignals did not return after cancel")
	}
}
