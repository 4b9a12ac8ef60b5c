package ipmi_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/ipmi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	requests []ipmi.Request
	handler  func(req ipmi.Request) []byte
	err      error
	closed   bool
}

func (f *fakeTransport) Exchange(_ context.Context, req ipmi.Request) ([]byte, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}

	return f.handler(req), nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func respond(frame ...byte) func(ipmi.Request) []byte {
	return func(ipmi.Request) []byte { return frame }
}

func TestGetFanMode(t *testing.T) {
	tr := &fakeTransport{handler: respond(0x45, 0x00, 0x01)}
	client := ipmi.NewClient(tr)

	mode, err := client.GetFanMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ipmi.FanModeFull, mode)
	assert.Equal(t, "Full Speed (manual)", mode.String())

	require.Len(t, tr.requests, 1)
	assert.Equal(t, ipmi.NetFnOEMSupermicro, tr.requests[0].NetFn)
	assert.Equal(t, byte(0x45), tr.requests[0].Command)
	assert.Equal(t, []byte{0x00}, tr.requests[0].Data)
}

func TestSetFanMode(t *testing.T) {
	tr := &fakeTransport{handler: respond(0x45, 0x00)}
	client := ipmi.NewClient(tr)

	require.NoError(t, client.SetFanMode(context.Background(), ipmi.FanModeFull))
	require.Len(t, tr.requests, 1)
	assert.Equal(t, []byte{0x01, 0x01}, tr.requests[0].Data)
}

func TestZonePercent(t *testing.T) {
	ctx := context.Background()

	tr := &fakeTransport{handler: respond(0x70, 0x00, 0x37)}
	client := ipmi.NewClient(tr)

	pct, err := client.GetZonePercent(ctx, ipmi.ZoneSystem)
	require.NoError(t, err)
	assert.Equal(t, uint8(55), pct)
	assert.Equal(t, byte(0x70), tr.requests[0].Command)
	assert.Equal(t, []byte{0x66, 0x00, 0x01}, tr.requests[0].Data)

	tr.handler = respond(0x70, 0x00)
	require.NoError(t, client.SetZonePercent(ctx, ipmi.ZoneCPU, 42))
	assert.Equal(t, []byte{0x66, 0x01, 0x00, 42}, tr.requests[1].Data)
}

func TestSetZonePercentRejectsOutOfRange(t *testing.T) {
	tr := &fakeTransport{handler: respond(0x70, 0x00)}
	client := ipmi.NewClient(tr)

	err := client.SetZonePercent(context.Background(), ipmi.ZoneCPU, 101)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
	assert.Empty(t, tr.requests)
}

func TestResponseValidation(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		code  errors.ErrorCode
	}{
		{"truncated", []byte{0x45}, ipmi.ErrTruncatedResponse},
		{"empty", nil, ipmi.ErrTruncatedResponse},
		{"completion code", []byte{0x45, 0xc1}, ipmi.ErrCompletionCode},
		{"echo mismatch", []byte{0x46, 0x00, 0x01}, ipmi.ErrCommandMismatch},
		{"too long", []byte{0x45, 0x00, 0x01, 0x02}, ipmi.ErrResponseLength},
		{"too short", []byte{0x45, 0x00}, ipmi.ErrResponseLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := ipmi.NewClient(&fakeTransport{handler: respond(tt.frame...)})

			_, err := client.GetFanMode(context.Background())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, ipmi.ErrGetFanMode))
			assert.True(t, errors.HasCode(err, tt.code), "expected %s in %v", tt.code, err)
		})
	}
}

func TestCompletionCodeIsNamed(t *testing.T) {
	client := ipmi.NewClient(&fakeTransport{handler: respond(0x45, 0xc1)})

	_, err := client.GetFanMode(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0xc1 invalid command")
	assert.Equal(t, "0x80 completion code", ipmi.CompletionCode(0x80).String())
}

func TestRawCommandEchoMismatchDiscardsData(t *testing.T) {
	client := ipmi.NewClient(&fakeTransport{handler: respond(0x99, 0x00, 0xaa)})

	data, err := client.RawCommand(context.Background(), ipmi.Request{
		NetFn:   ipmi.NetFnOEMSupermicro,
		Command: 0x45,
		Data:    []byte{0x00},
	}, 1)
	assert.Nil(t, data)
	assert.True(t, errors.HasCode(err, ipmi.ErrCommandMismatch))
}

func TestTransportErrorPropagates(t *testing.T) {
	tr := &fakeTransport{err: errors.New().New(ipmi.ErrTransportTimeout)}
	client := ipmi.NewClient(tr)

	err := client.SetZonePercent(context.Background(), ipmi.ZoneSystem, 50)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ipmi.ErrSetZonePercent))
	assert.True(t, errors.HasCode(err, ipmi.ErrTransportTimeout))

	require.NoError(t, client.Close())
	assert.True(t, tr.closed)
}

func TestFanModeString(t *testing.T) {
	assert.Equal(t, "Standard", ipmi.FanModeStandard.String())
	assert.Equal(t, "Optimal", ipmi.FanModeOptimal.String())
	assert.Equal(t, "Heavy I/O", ipmi.FanModeHeavyIO.String())
	assert.Equal(t, "UNKNOWN (0x03)", ipmi.FanMode(0x03).String())
	assert.Equal(t, "CPU", ipmi.ZoneCPU.String())
	assert.Equal(t, "system", ipmi.ZoneSystem.String())
}
