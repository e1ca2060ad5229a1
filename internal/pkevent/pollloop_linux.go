//go:build linux

package pkevent

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollLoop is the epoll-backed Loop implementation used by cmd/pkd and
// other headless processes. Every registered
// socket is added to a single epoll instance with EPOLLIN|EPOLLOUT;
// Run's single goroutine is the only place epoll_wait results ever reach
// a listener callback.
type pollLoop struct {
	mu      sync.Mutex
	epfd    int
	byFd    map[int32]*pollSocket
	bySock  map[Socket]int32
	timers  *timerSet
	stopCh  chan struct{}
	running bool
}

type pollSocket struct {
	sock     Socket
	fd       int32
	listener SocketListener
}

// NewPollLoop constructs the Linux epoll-backed Loop implementation.
func NewPollLoop() (Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("pkevent: epoll_create1: %w", err)
	}
	return &pollLoop{
		epfd:   epfd,
		byFd:   make(map[int32]*pollSocket),
		bySock: make(map[Socket]int32),
		timers: newTimerSet(),
	}, nil
}

func (l *pollLoop) AddSocket(s Socket, listener SocketListener) error {
	rawConn, err := s.SyscallConn()
	if err != nil {
		return fmt.Errorf("pkevent: SyscallConn: %w", err)
	}
	var fd int32
	if ctrlErr := rawConn.Control(func(p uintptr) { fd = int32(p) }); ctrlErr != nil {
		return fmt.Errorf("pkevent: Control: %w", ctrlErr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.bySock[s]; exists {
		return fmt.Errorf("pkevent: socket already registered")
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: fd}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("pkevent: epoll_ctl(ADD): %w", err)
	}

	l.byFd[fd] = &pollSocket{sock: s, fd: fd, listener: listener}
	l.bySock[s] = fd
	return nil
}

func (l *pollLoop) CancelSocket(s Socket) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fd, exists := l.bySock[s]
	if !exists {
		return fmt.Errorf("pkevent: socket not registered")
	}
	delete(l.bySock, s)
	delete(l.byFd, fd)
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	return nil
}

func (l *pollLoop) AddTimer(d time.Duration, listener TimerListener) TimerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timers.add(time.Now().Add(d), listener)
}

func (l *pollLoop) CancelTimer(id TimerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timers.cancel(id)
}

func (l *pollLoop) AddDeferred(cb func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timers.add(time.Now(), deferredListener{cb: cb})
}

func (l *pollLoop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	ch := l.stopCh
	l.mu.Unlock()
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// maxEpollEvents bounds a single epoll_wait batch; remaining readiness is
// picked up on the next iteration.
const maxEpollEvents = 128

func (l *pollLoop) Run() error {
	l.mu.Lock()
	l.stopCh = make(chan struct{})
	l.running = true
	l.mu.Unlock()

	events := make([]unix.EpollEvent, maxEpollEvents)

	for {
		l.mu.Lock()
		running := l.running
		l.mu.Unlock()
		if !running {
			return nil
		}

		timeoutMs := 250
		l.mu.Lock()
		if d, ok := l.timers.nextDeadline(); ok {
			if until := time.Until(d); until < time.Duration(timeoutMs)*time.Millisecond {
				timeoutMs = int(until / time.Millisecond)
				if timeoutMs < 0 {
					timeoutMs = 0
				}
			}
		}
		l.mu.Unlock()

		n, err := unix.EpollWait(l.epfd, events, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("pkevent: epoll_wait: %w", err)
		}

		// Readable before writable within this iteration.
		l.dispatchReady(events[:n], unix.EPOLLIN)
		l.dispatchReady(events[:n], unix.EPOLLOUT)

		l.mu.Lock()
		fired := l.timers.popExpired(time.Now())
		l.mu.Unlock()
		for _, f := range fired {
			f.listener.OnTimeout(f.id, f.deadline, time.Now())
		}
	}
}

func (l *pollLoop) dispatchReady(events []unix.EpollEvent, mask uint32) {
	for _, ev := range events {
		if ev.Events&mask == 0 {
			continue
		}
		l.mu.Lock()
		ps, exists := l.byFd[ev.Fd]
		l.mu.Unlock()
		if !exists {
			continue
		}
		if mask == unix.EPOLLIN {
			ps.listener.OnReadable(ps.sock)
		} else {
			ps.listener.OnWritable(ps.sock)
		}
	}
}
