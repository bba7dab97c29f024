package sshtransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Sentinel errors for connection establishment.
var (
	// ErrConnectFailed reports a TCP or SSH negotiation failure.
	ErrConnectFailed = errors.New("ssh connect failed")
	// ErrAuthFailed reports rejected credentials.
	ErrAuthFailed = errors.New("ssh authentication failed")
	// ErrHostKeyRejected reports a host key failing the profile's policy.
	ErrHostKeyRejected = errors.New("ssh host key rejected")
)

// Target identifies an SSH endpoint.
type Target struct {
	Host string
	Port int
}

// Addr returns the host:port dial address, defaulting the port to 22.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, fmt.Sprintf("%d", port))
}

// Credentials holds authentication material. Password and PrivateKeyPEM may
// both be set; each yields an auth method.
type Credentials struct {
	Username      string
	Password      string
	PrivateKeyPEM []byte
}

// Shell is a bidirectional byte stream bound to a PTY-backed remote shell.
// Reads block until device output arrives; Close tears down the session and
// the underlying connection.
type Shell interface {
	io.Reader
	io.Writer
	Close() error
}

// Transport establishes authenticated sessions and opens interactive shells.
// It is the seam the session layer mocks in tests.
type Transport interface {
	DialShell(ctx context.Context, target Target, creds Credentials, profile SecurityProfile) (Shell, error)
}

// SSHTransport is the production Transport over golang.org/x/crypto/ssh.
type SSHTransport struct {
	// DialTimeout bounds TCP connect plus SSH handshake.
	DialTimeout time.Duration
	// Term is the terminal type requested for the PTY.
	Term string
	// TermWidth and TermHeight are the PTY dimensions.
	TermWidth, TermHeight int
}

// NewSSHTransport returns a transport with production defaults.
func NewSSHTransport() *SSHTransport {
	return &SSHTransport{
		DialTimeout: 10 * time.Second,
		Term:        "xterm",
		TermWidth:   80,
		TermHeight:  24,
	}
}

// DialShell connects, authenticates, allocates a PTY and starts the remote
// shell. The returned Shell is single-owner: exactly one session actor reads
// and writes it.
func (t *SSHTransport) DialShell(ctx context.Context, target Target, creds Credentials, profile SecurityProfile) (Shell, error) {
	var auth []ssh.AuthMethod
	if len(creds.PrivateKeyPEM) > 0 {
		signer, err := ssh.ParsePrivateKey(creds.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("%w: parse private key: %v", ErrConnectFailed, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		auth = append(auth, ssh.Password(creds.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("%w: no credentials provided", ErrAuthFailed)
	}

	hostKeyCallback, err := t.hostKeyCallback(profile)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.DialTimeout,
		Config: ssh.Config{
			KeyExchanges: profile.KexAlgorithms,
			Ciphers:      profile.Ciphers,
			MACs:         profile.MACs,
		},
	}

	client, err := dialContext(ctx, target.Addr(), config, t.DialTimeout)
	if err != nil {
		return nil, classifyDialError(target.Addr(), err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: create session: %v", ErrConnectFailed, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(t.Term, t.TermHeight, t.TermWidth, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: request pty: %v", ErrConnectFailed, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrConnectFailed, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrConnectFailed, err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: start shell: %v", ErrConnectFailed, err)
	}

	return &shellConn{client: client, session: session, stdin: stdin, stdout: stdout}, nil
}

// dialContext runs ssh.Dial in a goroutine so the caller's context can cancel
// the wait. The abandoned dial finishes in the background and is closed.
func dialContext(ctx context.Context, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	type result struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, config)
		ch <- result{client: client, err: err}
	}()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case <-timer.C:
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, fmt.Errorf("%w: dial timeout after %v", ErrConnectFailed, timeout)
	case r := <-ch:
		return r.client, r.err
	}
}

func classifyDialError(addr string, err error) error {
	if err == nil {
		return nil
	}
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return fmt.Errorf("%w: %s: %v", ErrHostKeyRejected, addr, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return fmt.Errorf("%w: %s: %v", ErrAuthFailed, addr, err)
	}
	if strings.Contains(msg, "host key") || strings.Contains(msg, "knownhosts:") {
		return fmt.Errorf("%w: %s: %v", ErrHostKeyRejected, addr, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrConnectFailed) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrConnectFailed, addr, err)
}

func (t *SSHTransport) hostKeyCallback(profile SecurityProfile) (ssh.HostKeyCallback, error) {
	path := profile.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".ssh", "known_hosts")
		}
	}

	switch profile.HostKeyPolicy {
	case Permissive:
		return ssh.InsecureIgnoreHostKey(), nil

	case StrictKnownHosts:
		cb, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("%w: load known hosts %s: %v", ErrHostKeyRejected, path, err)
		}
		return cb, nil

	case AcceptNew:
		cb, err := knownhosts.New(path)
		if err != nil {
			// No known hosts file yet: everything is a new host.
			return ssh.InsecureIgnoreHostKey(), nil
		}
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			err := cb(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
				// Unknown host: accept.
				return nil
			}
			return err
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown host key policy %q", ErrHostKeyRejected, profile.HostKeyPolicy)
	}
}

// shellConn binds the SSH client, session and PTY pipes into a Shell.
type shellConn struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (s *shellConn) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *shellConn) Write(p []byte) (int, error) { return s.stdin.Write(p) }

func (s *shellConn) Close() error {
	s.session.Close()
	return s.client.Close()
}
