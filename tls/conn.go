package tls

import (
	"io"
	"net"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// callbackConn presents IOFuncs as a net.Conn for crypto/tls. Pull and Push stay single shot;
// the retry scheduling on would-block lives here.
type callbackConn struct {
	net.Conn
	funcs  *IOFuncs
	sawEOF atomic.Bool
}

var _ net.Conn = (*callbackConn)(nil)

func (c *callbackConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, st := c.funcs.Pull(p)
		switch st {
		case StatusOK:
			return n, nil
		case StatusWouldBlock:
			if n > 0 {
				return n, nil
			}
			if err := c.funcs.WaitReadable(); err != nil {
				return 0, err
			}
		case StatusClosed:
			c.sawEOF.Store(true)
			return 0, io.EOF
		default:
			return 0, c.cause("pull")
		}
	}
}

func (c *callbackConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, st := c.funcs.Push(p[written:])
		written += n
		switch st {
		case StatusOK:
		case StatusWouldBlock:
			if written < len(p) {
				if err := c.funcs.WaitWritable(); err != nil {
					return written, err
				}
			}
		case StatusClosed:
			return written, io.ErrClosedPipe
		default:
			return written, c.cause("push")
		}
	}
	return written, nil
}

func (c *callbackConn) cause(op string) error {
	if c.funcs.Err != nil {
		if err := c.funcs.Err(); err != nil {
			return err
		}
	}
	return errors.Newf("%s failed", op)
}

// peerClosedTransport reports whether the transport saw the peer close the connection.
func (c *callbackConn) peerClosedTransport() bool {
	return c.sawEOF.Load()
}
