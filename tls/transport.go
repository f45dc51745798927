package tls

import (
	"syscall"

	"github.com/agentuity/go-cellular/status"
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// TransferStatus is the outcome of a single pull or push.
type TransferStatus int

const (
	// StatusOK means the full requested length was transferred.
	StatusOK TransferStatus = iota
	// StatusWouldBlock means fewer bytes than requested were transferred, possibly none. The
	// caller decides when to try again.
	StatusWouldBlock
	// StatusClosed means the peer closed its side and nothing was read.
	StatusClosed
	// StatusError means the syscall failed. Transport.Err has the cause.
	StatusError
)

func (s TransferStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWouldBlock:
		return "would-block"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// IOFuncs is the set of callbacks a Session moves ciphertext through. Pull and Push must not
// block. WaitReadable and WaitWritable block until the next Pull or Push may make progress, or
// the connection deadline passes.
type IOFuncs struct {
	Pull         func(p []byte) (int, TransferStatus)
	Push         func(p []byte) (int, TransferStatus)
	WaitReadable func() error
	WaitWritable func() error
	Err          func() error
}

func (f *IOFuncs) complete() bool {
	return f != nil && f.Pull != nil && f.Push != nil && f.WaitReadable != nil && f.WaitWritable != nil
}

// Transport implements IOFuncs on a socket descriptor with exactly one read or write syscall per
// call.
type Transport struct {
	raw syscall.RawConn
	err error
}

// NewTransport takes the raw descriptor of c. It fails with CannotSpecifySSLIOConnection when c
// does not expose one.
func NewTransport(c syscall.Conn) (*Transport, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return nil, status.Wrap(status.CannotSpecifySSLIOConnection, err, "raw socket access")
	}
	return &Transport{raw: raw}, nil
}

// Pull reads into p once.
func (t *Transport) Pull(p []byte) (int, TransferStatus) {
	if len(p) == 0 {
		return 0, StatusOK
	}
	var (
		n   int
		err error
	)
	if cerr := t.raw.Read(func(fd uintptr) bool {
		n, err = unix.Read(int(fd), p)
		return true
	}); cerr != nil {
		err = cerr
	}
	return t.settle(n, len(p), err, true)
}

// Push writes p once.
func (t *Transport) Push(p []byte) (int, TransferStatus) {
	if len(p) == 0 {
		return 0, StatusOK
	}
	var (
		n   int
		err error
	)
	if cerr := t.raw.Write(func(fd uintptr) bool {
		n, err = unix.Write(int(fd), p)
		return true
	}); cerr != nil {
		err = cerr
	}
	return t.settle(n, len(p), err, false)
}

func (t *Transport) settle(n, requested int, err error, reading bool) (int, TransferStatus) {
	if n < 0 {
		n = 0
	}
	if n > requested {
		n = requested
	}
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, StatusWouldBlock
	case err != nil:
		t.err = err
		return 0, StatusError
	case n == requested:
		return n, StatusOK
	case n == 0 && reading:
		return 0, StatusClosed
	}
	return n, StatusWouldBlock
}

// WaitReadable parks until the socket has data, has been closed by the peer, or the read
// deadline passes.
func (t *Transport) WaitReadable() error {
	return t.wait(true)
}

// WaitWritable parks until the socket can take more data or the write deadline passes.
func (t *Transport) WaitWritable() error {
	return t.wait(false)
}

// wait probes readiness first since the poller is edge triggered and data left over from a
// partial pull does not raise a new edge.
func (t *Transport) wait(read bool) error {
	var events int16 = unix.POLLOUT
	op := t.raw.Write
	if read {
		events = unix.POLLIN
		op = t.raw.Read
	}
	probed := false
	return op(func(fd uintptr) bool {
		if probed {
			return true
		}
		probed = true
		return ready(fd, events)
	})
}

func ready(fd uintptr, events int16) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, 0)
	// on error let the next pull or push surface it
	return err != nil || n > 0
}

// Err returns the error behind the last StatusError.
func (t *Transport) Err() error {
	return t.err
}

// Funcs exposes the transport as IOFuncs.
func (t *Transport) Funcs() *IOFuncs {
	return &IOFuncs{
		Pull:         t.Pull,
		Push:         t.Push,
		WaitReadable: t.WaitReadable,
		WaitWritable: t.WaitWritable,
		Err:          t.Err,
	}
}
