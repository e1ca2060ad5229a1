// Package pkclient is the client-side p-call runtime: the per-process
// state that issues p-calls, correlates responses by request id,
// reassembles inbound frames, and dispatches delivered messages to the
// application's Listener.
//
// The event loop runs on its own goroutine; a synchronous p-call blocks
// on a channel specific to its request id until the matching response
// arrives, so p-calls issued from inside a callback need no nested loop
// pumping.
package pkclient

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/darqos/pk/internal/pkbuf"
	"github.com/darqos/pk/internal/pkerr"
	"github.com/darqos/pk/internal/pkevent"
	"github.com/darqos/pk/internal/pklog"
	"github.com/darqos/pk/internal/pkwire"
)

// Listener is the application-supplied event listener: it receives
// delivered messages and errors (connection loss, unroutable deliveries,
// responses that match no pending request).
type Listener interface {
	// OnDeliver is called once per DeliverMessage received for a locally
	// open port, whether or not a blocked ReceiveMessage consumes the
	// payload; the payload also flows through the port's local FIFO so a
	// subsequent ReceiveMessage sees it unless a waiter already popped it.
	OnDeliver(port uint64, source uint64, payload []byte)
	// OnError is called once when the connection to the pK is lost,
	// after every pending p-call on this runtime has been failed with
	// the same cause (disconnection abandons all pending
	// requests and is the sole cancellation mechanism). It is also
	// called for a DeliverMessage whose destination is not open locally
	// and for a response whose request id matches no pending request;
	// neither of those closes the connection.
	OnError(err error)
}

// portStatus tracks a local port through its lifecycle: reserved while an
// OpenPortRequest for a well-known port is in flight (so concurrent opens
// of the same number collide locally instead of racing to the pK),
// open once the pK confirms, half-closed while a ClosePortRequest is in
// flight. A rejected open or a confirmed close removes the entry outright.
type portStatus int

const (
	portReserved portStatus = iota
	portOpen
	portHalfClosed
)

// portState is the client's local record of one port: its status, the FIFO
// of delivered-but-unconsumed payloads, and blocked ReceiveMessage waiters.
type portState struct {
	status  portStatus
	queue   [][]byte
	waiters []chan []byte
	term    error // set before waiters are closed, read by the woken waiter
}

type pendingOpenPort struct {
	done     chan struct{}
	reserved uint64 // non-zero when a well-known port was locally reserved
	port     uint64
	err      error
}

type pendingClosePort struct {
	done chan struct{}
	err  error
}

// Runtime is the process-wide p-call client. The zero value is not
// usable; construct with New. A Runtime talks to exactly one pK.
type Runtime struct {
	addr     string
	listener Listener

	connectOnce sync.Once
	connectErr  error
	conn        net.Conn
	loop        pkevent.Loop

	inbound  pkbuf.Buffer
	outbound pkbuf.Buffer
	writeMu  sync.Mutex

	mu             sync.Mutex
	ports          map[uint64]*portState
	pendingOpens   map[uint32]*pendingOpenPort
	pendingCloses  map[uint32]*pendingClosePort
	nextRequestID  atomic.Uint32
	disconnectOnce sync.Once
}

// New constructs a Runtime that will lazily connect to addr (the pK's
// well-known endpoint, default ":11000") on the first
// p-call. listener may be nil if the application never expects
// unsolicited deliveries.
func New(addr string, listener Listener) *Runtime {
	return &Runtime{
		addr:          addr,
		listener:      listener,
		ports:         make(map[uint64]*portState),
		pendingOpens:  make(map[uint32]*pendingOpenPort),
		pendingCloses: make(map[uint32]*pendingClosePort),
	}
}

// connect lazily establishes the stream and starts the event loop's
// goroutine. Safe to call repeatedly; only the first call does work.
func (r *Runtime) connect() error {
	r.connectOnce.Do(func() {
		conn, err := net.Dial("tcp", r.addr)
		if err != nil {
			r.connectErr = fmt.Errorf("pkclient: dial %s: %w", r.addr, err)
			return
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			r.connectErr = fmt.Errorf("pkclient: unexpected conn type %T", conn)
			return
		}
		r.conn = tcpConn

		loop := pkevent.NewChanLoop()
		r.loop = loop
		if err := loop.AddSocket(tcpConn, r); err != nil {
			r.connectErr = fmt.Errorf("pkclient: register socket: %w", err)
			return
		}
		go func() { _ = loop.Run() }()
	})
	return r.connectErr
}

// OnReadable implements pkevent.SocketListener.
func (r *Runtime) OnReadable(_ pkevent.Socket) {
	buf := make([]byte, 64*1024)
	n, err := r.conn.Read(buf)
	if n > 0 {
		r.inbound.Append(buf[:n])
	}
	if err != nil {
		r.disconnect(pkerr.New("pkclient.read", pkerr.ConnectionLost, err))
		return
	}
	for {
		msg, consumed, derr := pkwire.Decode(r.inbound.Bytes())
		switch {
		case derr == pkwire.ErrNeedMore:
			return
		case derr != nil:
			r.disconnect(pkerr.New("pkclient.decode", pkerr.MalformedFrame, derr))
			return
		default:
			r.inbound.Consume(consumed)
			r.handleMessage(msg)
		}
	}
}

// OnWritable implements pkevent.SocketListener.
func (r *Runtime) OnWritable(_ pkevent.Socket) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.outbound.Len() == 0 {
		return
	}
	n, err := r.conn.Write(r.outbound.Bytes())
	if n > 0 {
		r.outbound.Consume(n)
	}
	if err != nil {
		r.disconnect(pkerr.New("pkclient.write", pkerr.ConnectionLost, err))
	}
}

func (r *Runtime) send(msg pkwire.Message) error {
	encoded, err := pkwire.Encode(msg)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	r.outbound.Append(encoded)
	r.writeMu.Unlock()
	// The portable loop always watches writability (pkevent's chanLoop
	// and pollLoop both arm EPOLLOUT/equivalent at AddSocket time), so
	// OnWritable will pick this up on its own; nothing further to signal.
	return nil
}

func (r *Runtime) handleMessage(msg pkwire.Message) {
	switch m := msg.(type) {
	case pkwire.OpenPortResponse:
		r.completeOpen(m)
	case pkwire.ClosePortResponse:
		r.completeClose(m)
	case pkwire.DeliverMessage:
		r.deliver(m)
	default:
		pklog.Warn("pkclient: dropping unexpected message type", "type", msg.MessageType())
	}
}

func (r *Runtime) completeOpen(m pkwire.OpenPortResponse) {
	r.mu.Lock()
	p, ok := r.pendingOpens[m.RequestID]
	if ok {
		delete(r.pendingOpens, m.RequestID)
	}
	if ok {
		if m.Result == 0 {
			if ps, reserved := r.ports[m.Port]; reserved {
				ps.status = portOpen
			} else {
				r.ports[m.Port] = &portState{status: portOpen}
			}
		} else if p.reserved != 0 {
			delete(r.ports, p.reserved)
		}
	}
	r.mu.Unlock()

	if !ok {
		r.unknownResponse("OpenPortResponse", m.RequestID)
		return
	}
	p.port = m.Port
	if m.Result != 0 {
		p.err = pkerr.New("open_port", pkerr.Code(m.Result), nil)
	}
	close(p.done)
}

func (r *Runtime) completeClose(m pkwire.ClosePortResponse) {
	r.mu.Lock()
	p, ok := r.pendingCloses[m.RequestID]
	if ok {
		delete(r.pendingCloses, m.RequestID)
	}
	var orphaned []chan []byte
	if ok {
		if ps, known := r.ports[m.Port]; known {
			if m.Result == 0 {
				ps.term = pkerr.New("receive_message", pkerr.NonExistentPort, nil)
				orphaned = ps.waiters
				delete(r.ports, m.Port)
			} else {
				// Failed close: the port returns to open.
				ps.status = portOpen
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		r.unknownResponse("ClosePortResponse", m.RequestID)
		return
	}
	for _, w := range orphaned {
		close(w)
	}
	if m.Result != 0 {
		p.err = pkerr.New("close_port", pkerr.Code(m.Result), nil)
	}
	close(p.done)
}

// unknownResponse handles a response whose request_id matches no pending
// request: a fatal client error, reported through the
// listener rather than by tearing down the stream.
func (r *Runtime) unknownResponse(kind string, requestID uint32) {
	err := fmt.Errorf("pkclient: %s for unknown request id %d", kind, requestID)
	pklog.Error("response correlation failure", "kind", kind, "request_id", requestID)
	if r.listener != nil {
		r.listener.OnError(err)
	}
}

// deliver runs the inbound dispatch rule for one DeliverMessage: if the
// destination port is locally open, the payload is appended to its FIFO
// and the listener is notified, unconditionally. A blocked ReceiveMessage
// waiter, if any, is woken separately by popping the FIFO head under the
// same lock; it does not divert the delivery around the listener.
func (r *Runtime) deliver(m pkwire.DeliverMessage) {
	r.mu.Lock()
	ps, ok := r.ports[m.Destination]
	open := ok && ps.status == portOpen
	var waiter chan []byte
	var head []byte
	if open {
		ps.queue = append(ps.queue, m.Payload)
		if len(ps.waiters) > 0 {
			waiter = ps.waiters[0]
			ps.waiters = ps.waiters[1:]
			head = ps.queue[0]
			ps.queue = ps.queue[1:]
		}
	}
	r.mu.Unlock()

	if !open {
		if r.listener != nil {
			r.listener.OnError(pkerr.New("deliver", pkerr.BadDestination,
				fmt.Errorf("message for port %d, which is not open locally", m.Destination)))
		}
		return
	}
	if waiter != nil {
		waiter <- head
	}
	if r.listener != nil {
		r.listener.OnDeliver(m.Destination, m.Source, m.Payload)
	}
}

// disconnect fails every pending p-call and notifies the listener. Safe
// to call from the read or write path; runs exactly once.
func (r *Runtime) disconnect(cause error) {
	r.disconnectOnce.Do(func() {
		_ = r.conn.Close()

		r.mu.Lock()
		opens := r.pendingOpens
		closes := r.pendingCloses
		ports := r.ports
		r.pendingOpens = make(map[uint32]*pendingOpenPort)
		r.pendingCloses = make(map[uint32]*pendingClosePort)
		r.ports = make(map[uint64]*portState)
		r.mu.Unlock()

		for _, p := range opens {
			p.err = cause
			close(p.done)
		}
		for _, p := range closes {
			p.err = cause
			close(p.done)
		}
		for _, ps := range ports {
			ps.term = cause
			for _, w := range ps.waiters {
				close(w)
			}
		}
		if r.listener != nil {
			r.listener.OnError(cause)
		}
	})
}

func (r *Runtime) allocRequestID() uint32 {
	return r.nextRequestID.Add(1)
}
