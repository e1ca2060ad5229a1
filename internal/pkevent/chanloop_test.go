//go:build unix

package pkevent

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu       sync.Mutex
	readable int
	done     chan struct{}
}

func (l *recordingListener) OnReadable(Socket) {
	l.mu.Lock()
	l.readable++
	n := l.readable
	l.mu.Unlock()
	if n == 1 {
		close(l.done)
	}
}

func (l *recordingListener) OnWritable(Socket) {}

func TestChanLoopNotifiesOnReadable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, aerr := ln.Accept()
		if aerr == nil {
			accepted <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	loop := NewChanLoop()
	listener := &recordingListener{done: make(chan struct{})}
	require.NoError(t, loop.AddSocket(server.(*net.TCPConn), listener))

	go loop.Run()
	defer loop.Stop()

	_, err = client.Write([]byte("hi"))
	require.NoError(t, err)

	select {
	case <-listener.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnReadable")
	}
}

func TestChanLoopDuplicateAddSocketFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	loop := NewChanLoop()
	listener := &recordingListener{done: make(chan struct{})}
	require.NoError(t, loop.AddSocket(client.(*net.TCPConn), listener))
	require.Error(t, loop.AddSocket(client.(*net.TCPConn), listener))
}
