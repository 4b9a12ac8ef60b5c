package errors_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/smfd/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	cause := stderrors.New("device busy")
	f := errors.New()

	assert.Equal(t, "Failed to initialize application", f.New(errors.ErrInitApp).Error())
	assert.Equal(t, "Failed to initialize application: device busy", f.Wrap(errors.ErrInitApp, cause).Error())
	assert.Equal(t, "no sensors", f.WithMessage(errors.ErrInitApp, "no sensors").Error())
	assert.Equal(t, "Invalid argument provided: {101}", f.WithData(errors.ErrInvalidArgument, struct{ Percent int }{101}).Error())
	assert.Equal(t, "unknown_code", f.New("unknown_code").Error())
}

func TestDataAndUnwrap(t *testing.T) {
	cause := stderrors.New("timeout")
	f := errors.New()

	wrapped := f.Wrap(errors.ErrMainLoop, cause)
	assert.Nil(t, wrapped.Data())
	assert.Same(t, cause, wrapped.Unwrap())
	assert.True(t, errors.Is(wrapped, cause))

	withData := f.WithData(errors.ErrAlreadyRunning, 42)
	assert.Equal(t, 42, withData.Data())
	assert.Nil(t, withData.Unwrap())
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.Wrap(errors.ErrSetFanZone, stderrors.New("cc 0xc1"))
	outer := f.Wrap(errors.ErrMainLoop, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrMainLoop))
	assert.True(t, errors.HasCode(outer, errors.ErrSetFanZone))
	assert.False(t, errors.HasCode(outer, errors.ErrReadSensors))
	assert.False(t, errors.HasCode(stderrors.New("plain"), errors.ErrMainLoop))
	assert.False(t, errors.HasCode(nil, errors.ErrMainLoop))
}
