//go:build unix

package pkevent

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// watchSocket spawns the read- and write-readiness goroutines for s on
// unix-like platforms, using golang.org/x/sys/unix.Poll. Each goroutine
// waits for a rearm signal, then blocks in short-timeout Poll calls (so it
// notices w.stop promptly) until the fd reports readiness, then posts one
// event and waits to be rearmed again.
func watchSocket(s Socket, w *socketWatch, events chan<- socketEvent) error {
	rawConn, err := s.SyscallConn()
	if err != nil {
		return fmt.Errorf("pkevent: SyscallConn: %w", err)
	}

	var fd int
	ctrlErr := rawConn.Control(func(p uintptr) { fd = int(p) })
	if ctrlErr != nil {
		return fmt.Errorf("pkevent: Control: %w", ctrlErr)
	}

	go pollLoopDirection(fd, unix.POLLIN, s, w, w.rearmRead, eventReadable, events)
	go pollLoopDirection(fd, unix.POLLOUT, s, w, w.rearmWrite, eventWritable, events)
	return nil
}

// pollTimeoutMillis bounds each unix.Poll call so the watcher notices
// w.stop being closed without needing a self-pipe.
const pollTimeoutMillis = 100

func pollLoopDirection(fd int, pollEvent int16, s Socket, w *socketWatch, rearm chan struct{}, kind socketEventKind, events chan<- socketEvent) {
	for {
		select {
		case <-w.stop:
			return
		case <-rearm:
		}

		for {
			select {
			case <-w.stop:
				return
			default:
			}

			fds := []unix.PollFd{{Fd: int32(fd), Events: pollEvent}}
			n, err := unix.Poll(fds, pollTimeoutMillis)
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				return
			}
			if n == 0 {
				continue
			}
			if fds[0].Revents&(pollEvent|unix.POLLHUP|unix.POLLERR) == 0 {
				continue
			}

			select {
			case events <- socketEvent{sock: s, kind: kind}:
			case <-w.stop:
			}
			break
		}
	}
}
