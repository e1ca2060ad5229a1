//go:build !unix

package pkevent

import "fmt"

// watchSocket has no portable, dependency-free implementation outside
// unix-like platforms in this codebase; AddSocket fails with a clear error
// there while timers and deferred callbacks keep working.
func watchSocket(Socket, *socketWatch, chan<- socketEvent) error {
	return fmt.Errorf("pkevent: socket readiness watching is not implemented on this platform")
}
