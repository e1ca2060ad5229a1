// Package router is the pK daemon's core: it accepts client connections,
// owns the port registry, and dispatches every decoded frame to the
// handler for its type.
package router

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/darqos/pk/internal/pkd/registry"
	"github.com/darqos/pk/internal/pkd/session"
	"github.com/darqos/pk/internal/pkerr"
	"github.com/darqos/pk/internal/pkevent"
	"github.com/darqos/pk/internal/pklog"
	"github.com/darqos/pk/internal/pkmetrics"
	"github.com/darqos/pk/internal/pktelemetry"
	"github.com/darqos/pk/internal/pkwire"
)

// RebootHook is invoked after every session has been torn down in
// response to a Reboot message, so cmd/pkd can re-exec itself or hand off
// to a boot helper. Shutdown does not invoke it.
type RebootHook func()

// Router owns the listener, the live session set, and the port registry.
// It is driven entirely from the goroutine that calls Run; RebootHook and
// introspection methods are the only things meant to be touched from
// elsewhere.
type Router struct {
	loop     pkevent.Loop
	listener *net.TCPListener
	registry *registry.Registry

	onReboot RebootHook

	mu       sync.RWMutex
	sessions map[session.ID]*session.Session
	nextID   atomic.Uint64

	stopped atomic.Bool
}

// New constructs a Router. loop must not be running yet; Run starts it.
func New(loop pkevent.Loop, onReboot RebootHook) *Router {
	return &Router{
		loop:     loop,
		registry: registry.New(),
		onReboot: onReboot,
		sessions: make(map[session.ID]*session.Session),
	}
}

// Banner logs the host OS, architecture, and hostname once at startup,
// for diagnostics only.
func Banner() {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	pklog.Info("pK platform", "os", runtime.GOOS, "arch", runtime.GOARCH, "host", host)
}

// Listen binds addr (e.g. ":7800") and registers the listener socket
// with the event loop, so accepts are driven by listener readability on
// the same single dispatch thread as every other handler. It does not
// block; call Run to drive the event loop.
func (r *Router) Listen(addr string) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("router: resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("router: listen %s: %w", addr, err)
	}
	if err := r.loop.AddSocket(ln, acceptor{r}); err != nil {
		_ = ln.Close()
		return fmt.Errorf("router: register listener: %w", err)
	}
	r.listener = ln
	pklog.Info("pK listening", "address", ln.Addr().String())
	return nil
}

// acceptor adapts the listener socket to the event loop: each readable
// notification means at least one connection is pending, so a single
// AcceptTCP returns promptly and the new session is admitted inline on
// the loop thread. Level-triggered readiness re-fires while more
// connections remain queued.
type acceptor struct{ r *Router }

func (a acceptor) OnReadable(_ pkevent.Socket) {
	conn, err := a.r.listener.AcceptTCP()
	if err != nil {
		if a.r.stopped.Load() {
			return
		}
		pklog.Warn("accept error", "error", err)
		return
	}
	a.r.admit(conn)
}

func (a acceptor) OnWritable(_ pkevent.Socket) {}

func (r *Router) admit(conn *net.TCPConn) {
	id := session.ID(r.nextID.Add(1))
	sess := session.New(id, conn, r)

	if err := r.loop.AddSocket(conn, sess); err != nil {
		pklog.Error("failed to register new session with event loop", "session", id, "error", err)
		_ = conn.Close()
		return
	}

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	pkmetrics.SessionsOpened.Inc()
	pkmetrics.SessionsActive.Inc()
	pklog.Debug("session opened", "session", id, "remote", conn.RemoteAddr())
}

// Dispatch implements session.Dispatcher. It is the router's closed
// switch over every wire message type.
func (r *Router) Dispatch(s *session.Session, msg pkwire.Message) {
	_, span := pktelemetry.StartSpan(context.Background(), "pk.dispatch."+msg.MessageType().String())
	defer span.End()

	switch m := msg.(type) {
	case pkwire.OpenPortRequest:
		r.handleOpenPort(s, m)
	case pkwire.ClosePortRequest:
		r.handleClosePort(s, m)
	case pkwire.SendMessage:
		r.handleSendMessage(s, m)
	case pkwire.Reboot:
		r.handleReboot()
	case pkwire.Shutdown:
		r.handleShutdown()
	default:
		pklog.Warn("dropping frame of unexpected type on pK-bound connection", "session", s.ID, "type", msg.MessageType())
	}
}

// Closed implements session.Dispatcher: releases every port the session
// owned and drops it from the session table. A disconnect implicitly
// releases every port the session held.
func (r *Router) Closed(s *session.Session, cause error) {
	released := r.registry.ReleaseAll(func(o registry.Owner) bool {
		owner, ok := o.(*session.Session)
		return ok && owner.ID == s.ID
	})

	r.mu.Lock()
	delete(r.sessions, s.ID)
	r.mu.Unlock()

	_ = r.loop.CancelSocket(s.Conn)
	pkmetrics.SessionsActive.Dec()
	pkmetrics.OutboundBacklogBytes.DeleteLabelValues(sessionLabel(s.ID))
	pklog.Debug("session closed, ports released", "session", s.ID, "released_ports", released, "cause", cause)
}

func sessionLabel(id session.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (r *Router) handleOpenPort(s *session.Session, req pkwire.OpenPortRequest) {
	port := req.RequestedPort
	var result uint8

	if port == 0 {
		allocated, err := r.registry.AllocateEphemeral()
		if err != nil {
			result = uint8(pkerr.CannotAllocatePort)
			r.reply(s, pkwire.OpenPortResponse{RequestID: req.RequestID, Result: result})
			return
		}
		port = allocated
	}

	if err := r.registry.Claim(port, s); err != nil {
		pkmetrics.DuplicatePortTotal.Inc()
		r.reply(s, pkwire.OpenPortResponse{RequestID: req.RequestID, Result: uint8(pkerr.DuplicatePort)})
		return
	}

	s.AddPort(port)
	pkmetrics.PortsOpen.Inc()
	r.reply(s, pkwire.OpenPortResponse{RequestID: req.RequestID, Result: result, Port: port})
}

func (r *Router) handleClosePort(s *session.Session, req pkwire.ClosePortRequest) {
	owner, exists := r.registry.Owner(req.Port)
	if !exists {
		r.reply(s, pkwire.ClosePortResponse{RequestID: req.RequestID, Result: uint8(pkerr.NonExistentPort), Port: req.Port})
		return
	}
	ownerSession, ok := owner.(*session.Session)
	if !ok || ownerSession.ID != s.ID {
		r.reply(s, pkwire.ClosePortResponse{RequestID: req.RequestID, Result: uint8(pkerr.NotOwner), Port: req.Port})
		return
	}

	r.registry.Release(req.Port)
	s.RemovePort(req.Port)
	pkmetrics.PortsOpen.Dec()
	r.reply(s, pkwire.ClosePortResponse{RequestID: req.RequestID, Port: req.Port})
}

// handleSendMessage looks up the destination port and forwards the
// payload as a DeliverMessage. A message addressed to a non-existent port
// is dropped with no negative ack to the sender; the drop leaves a
// counter increment and a debug log line as its only trace.
func (r *Router) handleSendMessage(s *session.Session, m pkwire.SendMessage) {
	owner, exists := r.registry.Owner(m.Destination)
	if !exists {
		pkmetrics.BadDestinationTotal.Inc()
		pklog.Debug("dropping message to unknown port", "session", s.ID, "destination", m.Destination)
		return
	}
	dest, ok := owner.(*session.Session)
	if !ok {
		pkmetrics.BadDestinationTotal.Inc()
		return
	}

	deliver := pkwire.DeliverMessage{Source: m.Source, Destination: m.Destination, Payload: m.Payload}
	if err := dest.Enqueue(deliver); err != nil {
		pklog.Warn("failed to enqueue delivery", "destination_session", dest.ID, "error", err)
		return
	}
	pkmetrics.MessagesDelivered.Inc()
	pkmetrics.OutboundBacklogBytes.WithLabelValues(sessionLabel(dest.ID)).Set(float64(dest.OutboundBytes()))
}

func (r *Router) reply(s *session.Session, msg pkwire.Message) {
	if err := s.Enqueue(msg); err != nil {
		pklog.Warn("failed to enqueue reply", "session", s.ID, "error", err)
		return
	}
	pkmetrics.OutboundBacklogBytes.WithLabelValues(sessionLabel(s.ID)).Set(float64(s.OutboundBytes()))
}

// handleReboot terminates every session, then schedules the reboot hook
// as a deferred callback so it runs after the current dispatch completes.
func (r *Router) handleReboot() {
	pklog.Info("reboot requested, closing all sessions")
	r.closeAll()
	if r.onReboot != nil {
		r.loop.AddDeferred(r.onReboot)
	}
}

// handleShutdown terminates every session and stops the event loop.
func (r *Router) handleShutdown() {
	pklog.Info("shutdown requested, closing all sessions")
	r.closeAll()
	r.Stop()
}

func (r *Router) closeAll() {
	r.mu.RLock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close(nil)
	}
}

// Run drives the event loop until Stop is called.
func (r *Router) Run() error {
	return r.loop.Run()
}

// Stop deregisters and closes the listener and halts the event loop.
func (r *Router) Stop() {
	r.stopped.Store(true)
	if r.listener != nil {
		_ = r.loop.CancelSocket(r.listener)
		_ = r.listener.Close()
	}
	r.loop.Stop()
}

// Addr returns the address the client-facing listener is bound to, or nil
// before Listen has been called.
func (r *Router) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// SessionCount returns the number of live sessions, for the admin surface.
func (r *Router) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionSnapshot returns the admin-surface view of every live session.
func (r *Router) SessionSnapshot() []session.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]session.Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	return out
}

// PortSnapshot returns a port -> session-id map, for the admin surface's
// /debug/ports endpoint.
func (r *Router) PortSnapshot() map[uint64]session.ID {
	raw := r.registry.Snapshot()
	out := make(map[uint64]session.ID, len(raw))
	for port, owner := range raw {
		if s, ok := owner.(*session.Session); ok {
			out[port] = s.ID
		}
	}
	return out
}
