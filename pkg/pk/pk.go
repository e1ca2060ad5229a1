// Package pk is the public client library for talking to a pK daemon: it
// re-exports the p-call surface implemented in internal/pkclient so
// application code outside this module can import a single stable
// package.
package pk

import "github.com/darqos/pk/internal/pkclient"

// DefaultAddr is the pK's well-known client-facing TCP endpoint.
const DefaultAddr = ":11000"

// Well-known service ports within the pK's port namespace. The pK does
// not privilege these; they are the conventions services use when opening
// their advertised port.
const (
	PortStorage  uint64 = 11001
	PortHistory  uint64 = 11002
	PortSecurity uint64 = 11003
	PortMetadata uint64 = 11004
	PortType     uint64 = 11006
)

// Listener receives asynchronous events from a Client: every delivered
// message on an open port (including ones a blocked ReceiveMessage
// consumes), and errors such as connection loss.
type Listener = pkclient.Listener

// Client is a process's connection to a pK. The zero value is not
// usable; construct with New.
type Client struct {
	rt *pkclient.Runtime
}

// New constructs a Client that will lazily connect to addr on its first
// p-call. Pass pk.DefaultAddr to use the standard port. listener may be
// nil.
func New(addr string, listener Listener) *Client {
	return &Client{rt: pkclient.New(addr, listener)}
}

// OpenPort requests a port from the pK; pass 0 for an ephemeral
// assignment. Blocks until the pK responds.
func (c *Client) OpenPort(requested uint64) (uint64, error) {
	return c.rt.OpenPort(requested)
}

// OpenPortAsync is the non-blocking variant; cb runs on a goroutine
// started for this call once the open completes or fails.
func (c *Client) OpenPortAsync(requested uint64, cb func(port uint64, err error)) {
	c.rt.OpenPortAsync(requested, cb)
}

// ClosePort releases a port this Client previously opened.
func (c *Client) ClosePort(port uint64) error {
	return c.rt.ClosePort(port)
}

// SendMessage sends payload from source (a port this Client owns) to
// destination. Fire-and-forget: no acknowledgment is returned.
func (c *Client) SendMessage(source, destination uint64, payload []byte) error {
	return c.rt.SendMessage(source, destination, payload)
}

// ReceiveMessage pops the next payload delivered to port. When blocking
// is false it returns immediately with ok == false if nothing is queued.
func (c *Client) ReceiveMessage(port uint64, blocking bool) (payload []byte, ok bool, err error) {
	return c.rt.ReceiveMessage(port, blocking)
}
