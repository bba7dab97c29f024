// Package sshtransport establishes authenticated SSH sessions with a
// PTY-backed interactive shell, wrapping golang.org/x/crypto/ssh.
//
// The Transport interface is what the session layer consumes; SSHTransport is
// the production implementation. Security profiles select the host-key policy
// and the algorithm families offered during key exchange, from a strict
// modern-only default down to a legacy set for old network gear.
package sshtransport
