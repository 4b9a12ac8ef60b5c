package ipmi

import (
	"context"
	"time"

	"codeberg.org/mutker/smfd/internal/errors"
	"codeberg.org/mutker/smfd/internal/logger"
)

const (
	cmdFanMode          = 0x45
	cmdGenericExtension = 0x70
	extFanPercent       = 0x66

	opRead  = 0x00
	opWrite = 0x01

	maxPercent = 100

	DefaultTimeout = 5 * time.Second
)

// Client speaks the Supermicro OEM fan commands and the standard sensor
// commands to the local BMC.
type Client struct {
	transport Transport
}

func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// Open connects to the BMC through the in-band device at path.
func Open(path string, timeout time.Duration) (*Client, error) {
	t, err := openDevice(path, timeout)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("device", path).Msg("Opened in-band IPMI device")

	return NewClient(t), nil
}

func (c *Client) Close() error {
	return c.transport.Close()
}

// exchange sends req and returns the validated response.
func (c *Client) exchange(ctx context.Context, req Request) (Response, error) {
	frame, err := c.transport.Exchange(ctx, req)
	if err != nil {
		return Response{}, err
	}

	return decodeResponse(req, frame)
}

// RawCommand sends req and returns its data, which must be exactly
// expectedLen bytes long.
func (c *Client) RawCommand(ctx context.Context, req Request, expectedLen int) ([]byte, error) {
	resp, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := expectLength(req, resp, expectedLen); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

func oemRequest(data ...byte) Request {
	return Request{
		NetFn:   NetFnOEMSupermicro,
		Command: data[0],
		Data:    data[1:],
	}
}

func (c *Client) GetFanMode(ctx context.Context) (FanMode, error) {
	data, err := c.RawCommand(ctx, oemRequest(cmdFanMode, opRead), 1)
	if err != nil {
		return 0, errors.New().Wrap(ErrGetFanMode, err)
	}

	return FanMode(data[0]), nil
}

func (c *Client) SetFanMode(ctx context.Context, mode FanMode) error {
	if _, err := c.RawCommand(ctx, oemRequest(cmdFanMode, opWrite, byte(mode)), 0); err != nil {
		return errors.New().Wrap(ErrSetFanMode, err)
	}
	logger.Debug().Stringer("mode", mode).Msg("Set BMC fan mode")

	return nil
}

func (c *Client) GetZonePercent(ctx context.Context, zone Zone) (uint8, error) {
	req := oemRequest(cmdGenericExtension, extFanPercent, opRead, byte(zone))
	data, err := c.RawCommand(ctx, req, 1)
	if err != nil {
		return 0, errors.New().Wrap(ErrGetZonePercent, err)
	}

	return data[0], nil
}

func (c *Client) SetZonePercent(ctx context.Context, zone Zone, percent uint8) error {
	errFactory := errors.New()

	if percent > maxPercent {
		return errFactory.WithData(errors.ErrInvalidArgument, "fan duty cycle out of range")
	}

	req := oemRequest(cmdGenericExtension, extFanPercent, opWrite, byte(zone), percent)
	if _, err := c.RawCommand(ctx, req, 0); err != nil {
		return errFactory.Wrap(ErrSetZonePercent, err)
	}
	logger.Debug().Stringer("zone", zone).Uint8("percent", percent).Msg("Set fan zone duty cycle")

	return nil
}
