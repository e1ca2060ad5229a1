// Package session is the pK-side per-connection state: the inbound
// reassembly buffer, the outbound staging buffer, and the set of ports
// this connection currently owns. Instead of a blocking per-connection
// goroutine, a Session exposes OnReadable/OnWritable for a pkevent.Loop
// to call.
package session

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/darqos/pk/internal/pkbuf"
	"github.com/darqos/pk/internal/pkerr"
	"github.com/darqos/pk/internal/pkevent"
	"github.com/darqos/pk/internal/pklog"
	"github.com/darqos/pk/internal/pkwire"
)

// ID uniquely identifies a session for the lifetime of the daemon process.
type ID uint64

// Dispatcher receives fully decoded frames from a session's inbound
// stream. Implemented by the router.
type Dispatcher interface {
	Dispatch(s *Session, msg pkwire.Message)
	// Closed is called once, when the session's connection is gone for
	// good (read error, write error, or explicit Close), so the router
	// can release the session's owned ports and drop it from its maps.
	Closed(s *Session, cause error)
}

// readChunk bounds a single read(2) call; large enough that a full frame
// usually arrives in one read, small enough that one slow client can't
// pin down an unbounded buffer.
const readChunk = 64 * 1024

// Conn is the connection type a Session wraps: a net.Conn that also
// exposes its raw fd, so it can be registered with a pkevent.Loop.
// *net.TCPConn satisfies this.
type Conn interface {
	net.Conn
	pkevent.Socket
}

// Session is the pK's state for one client TCP connection. All of its
// methods are expected to run on the single event-loop goroutine; the
// mutex guards only the fields introspection tools (the admin HTTP
// surface) read from a different goroutine.
type Session struct {
	ID ID
	// UID is a globally unique identifier for this session, carried in
	// log lines and admin-surface listings where the small monotonic ID
	// would be ambiguous across daemon restarts.
	UID  uuid.UUID
	Conn Conn

	inbound  pkbuf.Buffer
	outbound pkbuf.Buffer

	dispatcher Dispatcher

	mu    sync.Mutex
	ports map[uint64]struct{}

	closed bool
	log    *slog.Logger
}

// New creates a Session wrapping conn. id should be unique among live
// sessions (the router assigns these from a monotonic counter); New
// generates the session's UID itself.
func New(id ID, conn Conn, d Dispatcher) *Session {
	uid := uuid.New()
	return &Session{
		ID:         id,
		UID:        uid,
		Conn:       conn,
		dispatcher: d,
		ports:      make(map[uint64]struct{}),
		log:        pklog.With("session", id, "session_uid", uid.String(), "remote", conn.RemoteAddr()),
	}
}

// OwnsPort reports whether this session currently owns port.
func (s *Session) OwnsPort(port uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ports[port]
	return ok
}

// AddPort records port as owned by this session.
func (s *Session) AddPort(port uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[port] = struct{}{}
}

// RemovePort drops port from this session's owned set.
func (s *Session) RemovePort(port uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ports, port)
}

// Ports returns a snapshot of the ports this session currently owns.
func (s *Session) Ports() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.ports))
	for p := range s.ports {
		out = append(out, p)
	}
	return out
}

// Info is the introspection view of one session, served by the admin
// HTTP surface's /debug/sessions endpoint.
type Info struct {
	ID            ID       `json:"id"`
	UID           string   `json:"uid"`
	Remote        string   `json:"remote"`
	Ports         []uint64 `json:"ports"`
	OutboundBytes int      `json:"outbound_bytes"`
}

// Info snapshots this session for the admin surface.
func (s *Session) Info() Info {
	return Info{
		ID:            s.ID,
		UID:           s.UID.String(),
		Remote:        s.Conn.RemoteAddr().String(),
		Ports:         s.Ports(),
		OutboundBytes: s.OutboundBytes(),
	}
}

// OnReadable is called by the event loop when Conn has bytes available.
// It reads once, appends to the inbound buffer, then decodes and
// dispatches as many complete frames as are present (decode
// never blocks waiting for more bytes than are already buffered).
func (s *Session) OnReadable(_ pkevent.Socket) {
	buf := make([]byte, readChunk)
	n, err := s.Conn.Read(buf)
	if n > 0 {
		s.inbound.Append(buf[:n])
	}
	if err != nil {
		s.fail(pkerr.New("session.read", pkerr.ConnectionLost, err))
		return
	}

	for {
		msg, consumed, derr := pkwire.Decode(s.inbound.Bytes())
		switch {
		case derr == pkwire.ErrNeedMore:
			return
		case derr != nil:
			s.fail(pkerr.New("session.decode", pkerr.MalformedFrame, derr))
			return
		default:
			s.inbound.Consume(consumed)
			s.dispatcher.Dispatch(s, msg)
		}
	}
}

// OnWritable is called by the event loop when Conn can accept more bytes.
// It flushes as much of the outbound buffer as the socket will take. The
// loop watches writability unconditionally, so most invocations find an
// empty buffer and return immediately; that no-op is the deliberate
// trade for not having to arm and disarm write interest per transition.
func (s *Session) OnWritable(_ pkevent.Socket) {
	if s.outbound.Len() == 0 {
		return
	}
	n, err := s.Conn.Write(s.outbound.Bytes())
	if n > 0 {
		s.outbound.Consume(n)
	}
	if err != nil {
		s.fail(pkerr.New("session.write", pkerr.ConnectionLost, err))
	}
}

// OutboundBytes returns the number of unflushed bytes staged for
// delivery, for the admin surface's backlog gauge. There is no bound on
// this buffer: a slow or stalled peer accumulates outbound data
// indefinitely. Flow control beyond TCP's own is out of scope here.
func (s *Session) OutboundBytes() int {
	return s.outbound.Len()
}

// Enqueue encodes msg and appends it to the outbound buffer. It does not
// attempt to write immediately; the event loop's next writable
// notification drives OnWritable to flush.
func (s *Session) Enqueue(msg pkwire.Message) error {
	encoded, err := pkwire.Encode(msg)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	s.outbound.Append(encoded)
	return nil
}

// Close closes the underlying connection and notifies the dispatcher.
// Idempotent.
func (s *Session) Close(cause error) {
	s.fail(cause)
}

func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.Conn.Close()
	s.log.Debug("session closed", "cause", cause)
	s.dispatcher.Closed(s, cause)
}
