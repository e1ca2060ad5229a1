//go:build !linux

package pkevent

// NewPollLoop falls back to the portable chanLoop implementation on
// non-Linux hosts; only Linux gets the real epoll-backed loop.
func NewPollLoop() (Loop, error) {
	return NewChanLoop(), nil
}
