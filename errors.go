package cortos

import (
	"errors"
	"strconv"
)

// Errno is the status code returned by mutex, semaphore and message
// queue operations. A nil error is status 0; every non-nil Errno
// carries the POSIX number of the condition.
type Errno uintptr

const (
	EPERM     Errno = 1
	EAGAIN    Errno = 11
	EBUSY     Errno = 16
	EINVAL    Errno = 22
	EDEADLK   Errno = 35
	ETIMEDOUT Errno = 110
)

var errnoText = map[Errno]string{
	EPERM:     "operation not permitted",
	EAGAIN:    "resource temporarily unavailable",
	EBUSY:     "device or resource busy",
	EINVAL:    "invalid argument",
	EDEADLK:   "resource deadlock avoided",
	ETIMEDOUT: "connection timed out",
}

// Error returns the conventional text of the error number.
func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}

// Timeout reports whether the error is a timing outcome rather than
// a usage error.
func (e Errno) Timeout() bool {
	return e == ETIMEDOUT || e == EBUSY || e == EAGAIN
}

// ErrStalled is returned by Run when live threads remain but nothing
// (a timer or an armed interrupt) can ever make one of them runnable.
var ErrStalled = errors.New("cortos: no runnable threads")

// Status converts an operation result to its integer status code.
func Status(err error) int {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return int(e)
	}
	return -1
}
