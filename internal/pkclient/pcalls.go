package pkclient

import (
	"context"

	"github.com/darqos/pk/internal/pkerr"
	"github.com/darqos/pk/internal/pktelemetry"
	"github.com/darqos/pk/internal/pkwire"
)

// OpenPort requests a port from the pK. requested == 0 asks for an
// ephemeral port. It blocks until the pK responds or the
// connection is lost. A non-zero requested port is reserved locally before
// the request goes out, so a concurrent OpenPort of the same number fails
// with DuplicatePort instead of racing.
func (r *Runtime) OpenPort(requested uint64) (uint64, error) {
	_, span := pktelemetry.StartSpan(context.Background(), "pk.open_port")
	defer span.End()

	if err := r.connect(); err != nil {
		return 0, err
	}

	id := r.allocRequestID()
	p := &pendingOpenPort{done: make(chan struct{}), reserved: requested}
	r.mu.Lock()
	if requested != 0 {
		if _, exists := r.ports[requested]; exists {
			r.mu.Unlock()
			return 0, pkerr.New("open_port", pkerr.DuplicatePort, nil)
		}
		r.ports[requested] = &portState{status: portReserved}
	}
	r.pendingOpens[id] = p
	r.mu.Unlock()

	if err := r.send(pkwire.OpenPortRequest{RequestID: id, RequestedPort: requested}); err != nil {
		r.mu.Lock()
		delete(r.pendingOpens, id)
		if requested != 0 {
			delete(r.ports, requested)
		}
		r.mu.Unlock()
		return 0, err
	}

	<-p.done
	return p.port, p.err
}

// OpenPortAsync is the async variant: it returns immediately and cb is
// invoked on a goroutine started for this call once the response
// arrives or the open fails.
func (r *Runtime) OpenPortAsync(requested uint64, cb func(port uint64, err error)) {
	go func() {
		port, err := r.OpenPort(requested)
		cb(port, err)
	}()
}

// ClosePort releases a port this runtime previously opened. Returns
// NonExistentPort if the port is not locally known and open.
// The port sits half-closed while the request is in flight: no longer
// valid as a send source, removed for good once the pK confirms, restored
// to open if the pK rejects the close.
func (r *Runtime) ClosePort(port uint64) error {
	_, span := pktelemetry.StartSpan(context.Background(), "pk.close_port")
	defer span.End()

	if err := r.connect(); err != nil {
		return err
	}

	id := r.allocRequestID()
	p := &pendingClosePort{done: make(chan struct{})}
	r.mu.Lock()
	ps, known := r.ports[port]
	if !known || ps.status != portOpen {
		r.mu.Unlock()
		return pkerr.New("close_port", pkerr.NonExistentPort, nil)
	}
	ps.status = portHalfClosed
	r.pendingCloses[id] = p
	r.mu.Unlock()

	if err := r.send(pkwire.ClosePortRequest{RequestID: id, Port: port}); err != nil {
		r.mu.Lock()
		delete(r.pendingCloses, id)
		if ps, ok := r.ports[port]; ok {
			ps.status = portOpen
		}
		r.mu.Unlock()
		return err
	}

	<-p.done
	return p.err
}

// SendMessage sends payload from a locally owned open port to
// destination. It is fire-and-forget at the protocol level: there is no
// acknowledgment, and this call returns once the frame has been handed
// to the outbound buffer.
func (r *Runtime) SendMessage(source, destination uint64, payload []byte) error {
	_, span := pktelemetry.StartSpan(context.Background(), "pk.send_message")
	defer span.End()

	if err := r.connect(); err != nil {
		return err
	}

	r.mu.Lock()
	ps, known := r.ports[source]
	open := known && ps.status == portOpen
	r.mu.Unlock()
	if !open {
		return pkerr.New("send_message", pkerr.NonExistentPort, nil)
	}

	return r.send(pkwire.SendMessage{Source: source, Destination: destination, Payload: payload})
}

// ReceiveMessage pops the next payload delivered to port. In non-blocking
// mode it returns (nil, false, nil) immediately if nothing is queued; in
// blocking mode it waits until a message arrives or the connection is
// lost.
func (r *Runtime) ReceiveMessage(port uint64, blocking bool) ([]byte, bool, error) {
	r.mu.Lock()
	ps, known := r.ports[port]
	if !known || ps.status == portReserved {
		r.mu.Unlock()
		return nil, false, pkerr.New("receive_message", pkerr.NonExistentPort, nil)
	}
	if len(ps.queue) > 0 {
		payload := ps.queue[0]
		ps.queue = ps.queue[1:]
		r.mu.Unlock()
		return payload, true, nil
	}
	if !blocking {
		r.mu.Unlock()
		return nil, false, nil
	}

	waiter := make(chan []byte, 1)
	ps.waiters = append(ps.waiters, waiter)
	r.mu.Unlock()

	payload, ok := <-waiter
	if !ok {
		// The waiter was abandoned: the connection dropped or the port
		// was closed underneath us. term carries which.
		r.mu.Lock()
		cause := ps.term
		r.mu.Unlock()
		if cause == nil {
			cause = pkerr.New("receive_message", pkerr.ConnectionLost, nil)
		}
		return nil, false, cause
	}
	return payload, true, nil
}
