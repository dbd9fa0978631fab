package streambus

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// isExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection reset.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
