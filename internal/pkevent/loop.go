// Package pkevent implements the event-loop abstraction shared by the pK
// daemon and the client runtime: readiness notification for
// sockets, single-shot timers, and end-of-iteration deferred callbacks.
//
// Two conforming implementations exist. pollLoop (Linux, pollloop_linux.go)
// is backed by golang.org/x/sys/unix epoll and is what cmd/pkd uses.
// chanLoop (chanloop.go) is a portable, goroutine-driven implementation of
// the identical interface, used on non-Linux hosts and as the model for
// embedding the loop inside a foreign run loop (e.g. a GUI toolkit's),
// since both ultimately just need someone to call the Loop's internal
// dispatch whenever a registered thing becomes ready.
package pkevent

import (
	"syscall"
	"time"
)

// Socket is anything the loop can monitor for read/write readiness. Every
// *net.TCPConn satisfies it.
type Socket interface {
	syscall.Conn
}

// SocketListener receives readiness callbacks for a registered Socket.
type SocketListener interface {
	OnReadable(s Socket)
	OnWritable(s Socket)
}

// TimerID identifies a scheduled timer for cancellation.
type TimerID uint64

// TimerListener receives a callback when its timer expires.
type TimerListener interface {
	// OnTimeout is called once, after the requested duration elapses.
	// scheduled is the target wall-clock deadline; actual is the time
	// the loop actually observed the deadline. Re-arming is the
	// listener's choice: call AddTimer again from here.
	OnTimeout(id TimerID, scheduled, actual time.Time)
}

// Loop is the capability both the pK daemon and the client runtime use.
// Implementations are single-threaded and cooperative: every callback
// runs to completion on the Run goroutine before the next is dispatched,
// and the only suspension points are Run's iteration boundaries.
type Loop interface {
	// AddSocket begins monitoring s for read and write readiness.
	// Returns an error if s is already registered.
	AddSocket(s Socket, l SocketListener) error

	// CancelSocket stops monitoring s. Returns an error if s was not
	// registered.
	CancelSocket(s Socket) error

	// AddTimer schedules l to be invoked once after d elapses.
	AddTimer(d time.Duration, l TimerListener) TimerID

	// CancelTimer cancels a pending timer. Idempotent: canceling an
	// already-fired or already-canceled timer is a no-op.
	CancelTimer(id TimerID)

	// AddDeferred schedules cb to run once, after the current Run
	// iteration completes.
	AddDeferred(cb func())

	// Run processes readiness events until Stop is called. It returns
	// when Stop causes the next iteration boundary to exit, or if the
	// loop encounters an unrecoverable error monitoring a registered
	// socket.
	Run() error

	// Stop causes a running Run call to return at its next iteration
	// boundary. Safe to call from within a callback or from another
	// goroutine.
	Stop()
}

// deferredListener adapts a plain func() to TimerListener so AddDeferred
// can be implemented as a zero-duration timer.
type deferredListener struct{ cb func() }

func (d deferredListener) OnTimeout(TimerID, time.Time, time.Time) { d.cb() }
