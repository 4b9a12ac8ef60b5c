//go:build linux

package ipmi

import (
	"context"
	"runtime"
	"time"
	"unsafe"

	"codeberg.org/mutker/smfd/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	systemInterfaceAddrType = 0x0c
	bmcChannel              = 0x0f
	responseRecvType        = 1
	maxResponseLen          = 256

	iocWrite = 1
	iocRead  = 2
	ipmiIOC  = 'i'
)

// Layouts of struct ipmi_system_interface_addr, ipmi_msg, ipmi_req and
// ipmi_recv from linux/ipmi.h.
type systemInterfaceAddr struct {
	addrType int32
	channel  int16
	lun      uint8
	_        uint8
}

type ipmiMsg struct {
	netfn   uint8
	cmd     uint8
	dataLen uint16
	data    *byte
}

type ipmiReq struct {
	addr    *byte
	addrLen uint32
	msgID   int64
	msg     ipmiMsg
}

type ipmiRecv struct {
	recvType int32
	addr     *byte
	addrLen  uint32
	msgID    int64
	msg      ipmiMsg
}

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | ipmiIOC<<8 | nr
}

var (
	ipmictlSendCommand    = ioc(iocRead, 13, unsafe.Sizeof(ipmiReq{}))
	ipmictlReceiveMsgTrnc = ioc(iocRead|iocWrite, 11, unsafe.Sizeof(ipmiRecv{}))
)

// device talks to the BMC through the OpenIPMI character device.
type device struct {
	fd      int
	path    string
	timeout time.Duration
	msgID   int64
}

func openDevice(path string, timeout time.Duration) (Transport, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.New().WithData(ErrDeviceOpen, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &device{fd: fd, path: path, timeout: timeout}, nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}

	return nil
}

func (d *device) Exchange(ctx context.Context, req Request) ([]byte, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return nil, errFactory.Wrap(ErrTransport, err)
	}

	d.msgID++
	if err := d.send(req); err != nil {
		return nil, errFactory.WithData(ErrTransport, struct {
			Phase   string
			Command byte
			Error   string
		}{
			Phase:   "send",
			Command: req.Command,
			Error:   err.Error(),
		})
	}

	if err := d.wait(ctx, req); err != nil {
		return nil, err
	}

	return d.receive(req)
}

func (d *device) send(req Request) error {
	addr := systemInterfaceAddr{
		addrType: systemInterfaceAddrType,
		channel:  bmcChannel,
		lun:      req.LUN,
	}
	msg := ipmiReq{
		addr:    (*byte)(unsafe.Pointer(&addr)),
		addrLen: uint32(unsafe.Sizeof(addr)),
		msgID:   d.msgID,
		msg: ipmiMsg{
			netfn:   uint8(req.NetFn),
			cmd:     req.Command,
			dataLen: uint16(len(req.Data)),
		},
	}
	if len(req.Data) > 0 {
		msg.msg.data = &req.Data[0]
	}

	err := ioctl(d.fd, ipmictlSendCommand, unsafe.Pointer(&msg))
	runtime.KeepAlive(&addr)
	runtime.KeepAlive(req.Data)

	return err
}

func (d *device) wait(ctx context.Context, req Request) error {
	errFactory := errors.New()

	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errFactory.WithData(ErrTransportTimeout, struct {
				Command byte
				Timeout string
			}{
				Command: req.Command,
				Timeout: d.timeout.String(),
			})
		}

		n, err := unix.Poll(fds, int(remaining.Milliseconds())+1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errFactory.WithData(ErrTransport, struct {
				Phase string
				Error string
			}{
				Phase: "poll",
				Error: err.Error(),
			})
		}
		if n > 0 {
			return nil
		}
	}
}

func (d *device) receive(req Request) ([]byte, error) {
	errFactory := errors.New()

	var (
		addr systemInterfaceAddr
		buf  [maxResponseLen]byte
	)
	recv := ipmiRecv{
		addr:    (*byte)(unsafe.Pointer(&addr)),
		addrLen: uint32(unsafe.Sizeof(addr)),
		msg: ipmiMsg{
			dataLen: uint16(len(buf)),
			data:    &buf[0],
		},
	}

	err := ioctl(d.fd, ipmictlReceiveMsgTrnc, unsafe.Pointer(&recv))
	runtime.KeepAlive(&addr)
	runtime.KeepAlive(&buf)
	if err != nil {
		return nil, errFactory.WithData(ErrTransport, struct {
			Phase   string
			Command byte
			Error   string
		}{
			Phase:   "receive",
			Command: req.Command,
			Error:   err.Error(),
		})
	}

	if recv.recvType != responseRecvType || recv.msgID != d.msgID {
		return nil, errFactory.WithData(ErrTransport, struct {
			Phase    string
			RecvType int32
			Sent     int64
			Received int64
		}{
			Phase:    "match_response",
			RecvType: recv.recvType,
			Sent:     d.msgID,
			Received: recv.msgID,
		})
	}

	n := int(recv.msg.dataLen)
	if n > len(buf) {
		n = len(buf)
	}
	frame := make([]byte, 0, n+1)
	frame = append(frame, recv.msg.cmd)
	frame = append(frame, buf[:n]...)

	return frame, nil
}

func (d *device) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return errors.New().WithData(errors.ErrShutdownFailed, struct {
			Path  string
			Error string
		}{
			Path:  d.path,
			Error: err.Error(),
		})
	}

	return nil
}
