package pkclient_test

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darqos/pk/internal/pkclient"
	"github.com/darqos/pk/internal/pkd/registry"
	"github.com/darqos/pk/internal/pkd/router"
	"github.com/darqos/pk/internal/pkerr"
	"github.com/darqos/pk/internal/pkevent"
)

// startRouter runs a real pkd router on an OS-assigned port and returns
// its address, so these tests exercise the full client->wire->router->wire
// ->client path.
func startRouter(t *testing.T) string {
	t.Helper()
	loop := pkevent.NewChanLoop()
	r := router.New(loop, nil)
	require.NoError(t, r.Listen("127.0.0.1:0"))
	go r.Run()
	t.Cleanup(r.Stop)
	return r.Addr().String()
}

type recordingListener struct {
	mu         sync.Mutex
	deliveries []delivery
	errs       []error
}

type delivery struct {
	port    uint64
	source  uint64
	payload []byte
}

func (l *recordingListener) OnDeliver(port, source uint64, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries = append(l.deliveries, delivery{port: port, source: source, payload: payload})
}

func (l *recordingListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *recordingListener) deliveryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.deliveries)
}

func TestOpenCloseEphemeralRoundTrip(t *testing.T) {
	addr := startRouter(t)
	rt := pkclient.New(addr, nil)

	port, err := rt.OpenPort(0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, registry.EphemeralBase)
	assert.Less(t, port, registry.EphemeralBound)

	require.NoError(t, rt.ClosePort(port))

	// The port is gone locally once the close is confirmed.
	err = rt.ClosePort(port)
	var perr *pkerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pkerr.NonExistentPort, perr.Code)
}

func TestLoopbackDelivery(t *testing.T) {
	addr := startRouter(t)
	rt := pkclient.New(addr, nil)

	port, err := rt.OpenPort(0)
	require.NoError(t, err)

	require.NoError(t, rt.SendMessage(port, port, []byte("ping")))

	payload, ok, err := rt.ReceiveMessage(port, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("ping"), payload)
}

func TestDeliveryReachesListenerAndQueue(t *testing.T) {
	addr := startRouter(t)
	listener := &recordingListener{}
	rt := pkclient.New(addr, listener)

	port, err := rt.OpenPort(0)
	require.NoError(t, err)

	require.NoError(t, rt.SendMessage(port, port, []byte("hello")))

	require.Eventually(t, func() bool {
		return listener.deliveryCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	listener.mu.Lock()
	d := listener.deliveries[0]
	listener.mu.Unlock()
	assert.Equal(t, port, d.port)
	assert.Equal(t, port, d.source)
	assert.Equal(t, []byte("hello"), d.payload)

	// The payload is also queued for a subsequent non-blocking receive.
	payload, ok, err := rt.ReceiveMessage(port, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), payload)
}

func TestListenerSeesDeliveryConsumedByBlockingWaiter(t *testing.T) {
	addr := startRouter(t)
	listener := &recordingListener{}
	rt := pkclient.New(addr, listener)

	port, err := rt.OpenPort(0)
	require.NoError(t, err)

	received := make(chan []byte, 1)
	go func() {
		payload, ok, rerr := rt.ReceiveMessage(port, true)
		if rerr == nil && ok {
			received <- payload
		}
	}()

	// Let the receiver block before the message goes out; delivery must
	// still notify the listener even though the waiter consumes it.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, rt.SendMessage(port, port, []byte("both")))

	select {
	case payload := <-received:
		assert.Equal(t, []byte("both"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocking receive")
	}

	require.Eventually(t, func() bool {
		return listener.deliveryCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	listener.mu.Lock()
	d := listener.deliveries[0]
	listener.mu.Unlock()
	assert.Equal(t, port, d.port)
	assert.Equal(t, []byte("both"), d.payload)

	// The waiter drained the FIFO; nothing is left to pop.
	_, ok, err := rt.ReceiveMessage(port, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPipelinedOpensCorrelateByRequestID(t *testing.T) {
	addr := startRouter(t)
	rt := pkclient.New(addr, nil)

	type result struct {
		port uint64
		err  error
	}
	results := make(chan result, 2)
	rt.OpenPortAsync(0, func(port uint64, err error) { results <- result{port, err} })
	rt.OpenPortAsync(0, func(port uint64, err error) { results <- result{port, err} })

	a := <-results
	b := <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.NotEqual(t, a.port, b.port)
}

func TestFixedPortConflictAcrossClients(t *testing.T) {
	addr := startRouter(t)
	clientA := pkclient.New(addr, nil)
	clientB := pkclient.New(addr, nil)

	const port = 2917

	got, err := clientA.OpenPort(port)
	require.NoError(t, err)
	assert.EqualValues(t, port, got)

	_, err = clientB.OpenPort(port)
	var perr *pkerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pkerr.DuplicatePort, perr.Code)

	require.NoError(t, clientA.ClosePort(port))

	got, err = clientB.OpenPort(port)
	require.NoError(t, err)
	assert.EqualValues(t, port, got)
}

func TestOpenPortLocalDuplicateFailsWithoutRoundTrip(t *testing.T) {
	addr := startRouter(t)
	rt := pkclient.New(addr, nil)

	_, err := rt.OpenPort(4000)
	require.NoError(t, err)

	_, err = rt.OpenPort(4000)
	var perr *pkerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pkerr.DuplicatePort, perr.Code)
}

func TestSendFromUnknownSourceFails(t *testing.T) {
	addr := startRouter(t)
	rt := pkclient.New(addr, nil)

	err := rt.SendMessage(9999, 9999, []byte("x"))
	var perr *pkerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pkerr.NonExistentPort, perr.Code)
}

func TestReceiveOnUnknownPortFails(t *testing.T) {
	addr := startRouter(t)
	rt := pkclient.New(addr, nil)

	_, _, err := rt.ReceiveMessage(12345, false)
	var perr *pkerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pkerr.NonExistentPort, perr.Code)
}

func TestReceiveNonBlockingOnEmptyQueueYieldsNothing(t *testing.T) {
	addr := startRouter(t)
	rt := pkclient.New(addr, nil)

	port, err := rt.OpenPort(0)
	require.NoError(t, err)

	payload, ok, err := rt.ReceiveMessage(port, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, payload)
}

func TestConnectFailureFailsTheTriggeringPCall(t *testing.T) {
	// Grab an address that is guaranteed to refuse connections.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	rt := pkclient.New(addr, nil)
	_, err = rt.OpenPort(0)
	require.Error(t, err)
	assert.False(t, errors.Is(err, pkerr.New("", pkerr.DuplicatePort, nil)))
}
