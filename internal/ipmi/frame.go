package ipmi

import (
	"codeberg.org/mutker/smfd/internal/errors"
)

const frameHeaderLen = 2

// decodeResponse validates a raw response frame against the request that
// produced it. Nothing from the frame is exposed unless the frame is long
// enough, reports success, and echoes the request's command byte.
func decodeResponse(req Request, frame []byte) (Response, error) {
	errFactory := errors.New()

	if len(frame) < frameHeaderLen {
		return Response{}, errFactory.WithData(ErrTruncatedResponse, struct {
			Command byte
			Bytes   int
		}{
			Command: req.Command,
			Bytes:   len(frame),
		})
	}

	cc := CompletionCode(frame[1])
	if cc != CompletionOK {
		return Response{}, errFactory.WithData(ErrCompletionCode, struct {
			NetFn   NetFn
			Command byte
			Code    string
		}{
			NetFn:   req.NetFn,
			Command: req.Command,
			Code:    cc.String(),
		})
	}

	if frame[0] != req.Command {
		return Response{}, errFactory.WithData(ErrCommandMismatch, struct {
			Sent     byte
			Received byte
		}{
			Sent:     req.Command,
			Received: frame[0],
		})
	}

	data := make([]byte, len(frame)-frameHeaderLen)
	copy(data, frame[frameHeaderLen:])

	return Response{
		Command:        frame[0],
		CompletionCode: cc,
		Data:           data,
	}, nil
}

func expectLength(req Request, resp Response, n int) error {
	if len(resp.Data) != n {
		return errors.New().WithData(ErrResponseLength, struct {
			Command  byte
			Got      int
			Expected int
		}{
			Command:  req.Command,
			Got:      len(resp.Data),
			Expected: n,
		})
	}

	return nil
}

func expectMinLength(req Request, resp Response, n int) error {
	if len(resp.Data) < n {
		return errors.New().WithData(ErrResponseLength, struct {
			Command byte
			Got     int
			Minimum int
		}{
			Command: req.Command,
			Got:     len(resp.Data),
			Minimum: n,
		})
	}

	return nil
}
