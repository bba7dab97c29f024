package sshsession

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/netgrip/netgrip/devicefsm"
	"github.com/netgrip/netgrip/sshtransport"
)

// ciscoTestConfig mirrors a Cisco-style template: three modes, enable password
// input on the login->enable edge, error patterns for rejected commands.
func ciscoTestConfig() devicefsm.Config {
	return devicefsm.Config{
		States: []devicefsm.StateConfig{
			{Name: "Config", Prompts: []string{`^\S+\(\S+\)#\s*$`}},
			{Name: "Enable", Prompts: []string{`^[^\s#]+#\s*$`}},
			{Name: "Login", Prompts: []string{`^[^\s<#]+>\s*$`}},
			{Name: "VSite", Prompts: []string{`^\S+\$\s*$`}, SysScoped: true},
			{Name: "Rommon", Prompts: []string{`^rommon \d+ >\s*$`}},
		},
		Edges: []devicefsm.EdgeConfig{
			{From: "Login", To: "Enable", Command: "enable", Inputs: []devicefsm.DynamicInput{
				{Trigger: `Password:`, Response: "secret", Sensitive: true},
			}},
			{From: "Enable", To: "Config", Command: "configure terminal"},
			{From: "Config", To: "Enable", Command: "exit", Exit: true},
			{From: "Enable", To: "Login", Command: "exit", Exit: true},
			{From: "Enable", To: "VSite", Command: "switch {}"},
			{From: "VSite", To: "Enable", Command: "exit", Exit: true},
		},
		ErrorPatterns: []string{`% Invalid input.*`, `ERROR:.+`},
	}
}

// fakeDevice scripts a Cisco-like CLI: mode tracking, optional enable
// password, a hanging command for timeout tests and a failing command for
// error-pattern tests.
type fakeDevice struct {
	mode             string
	site             string
	enablePassword   string
	awaitingPassword bool
}

func newFakeDevice() *fakeDevice { return &fakeDevice{mode: "login"} }

func (d *fakeDevice) prompt() string {
	switch d.mode {
	case "enable":
		return "router#"
	case "config":
		return "router(config)#"
	case "vsite":
		return d.site + "$"
	default:
		return "router>"
	}
}

func (d *fakeDevice) handle(line string) []string {
	if d.awaitingPassword {
		d.awaitingPassword = false
		if line == d.enablePassword {
			d.mode = "enable"
			return []string{"\r\n" + d.prompt()}
		}
		return []string{"\r\nInvalid password\r\n" + d.prompt()}
	}

	echo := line + "\r\n"
	switch {
	case line == "":
		return []string{"\r\n" + d.prompt()}
	case line == "enable" && d.mode == "login":
		if d.enablePassword != "" {
			d.awaitingPassword = true
			return []string{echo + "Password: "}
		}
		d.mode = "enable"
		return []string{echo + d.prompt()}
	case line == "configure terminal" && d.mode == "enable":
		d.mode = "config"
		return []string{echo + d.prompt()}
	case line == "exit" && d.mode == "config":
		d.mode = "enable"
		return []string{echo + d.prompt()}
	case line == "exit" && d.mode == "vsite":
		d.mode = "enable"
		d.site = ""
		return []string{echo + d.prompt()}
	case line == "exit" && d.mode == "enable":
		d.mode = "login"
		return []string{echo + d.prompt()}
	case strings.HasPrefix(line, "switch ") && d.mode == "enable":
		d.mode = "vsite"
		d.site = strings.TrimPrefix(line, "switch ")
		return []string{echo + d.prompt()}
	case line == "hang":
		// Echo but never a prompt: the job must time out.
		return []string{echo + "building configuration...\r\n"}
	case line == "badcmd":
		return []string{echo + "% Invalid input detected at '^' marker.\r\n" + d.prompt()}
	case line == "show version":
		return []string{echo + "Cisco IOS Software, Version 15.2\r\n" + d.prompt()}
	default:
		return []string{echo + d.prompt()}
	}
}

// fakeShell adapts a fakeDevice to the sshtransport.Shell interface.
type fakeShell struct {
	mu     sync.Mutex
	out    chan string
	closed bool
	writes []string
	device *fakeDevice
}

func newFakeShell(device *fakeDevice) *fakeShell {
	s := &fakeShell{out: make(chan string, 256), device: device}
	s.out <- device.prompt()
	return s
}

func (s *fakeShell) Read(p []byte) (int, error) {
	data, ok := <-s.out
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (s *fakeShell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("shell closed")
	}
	line := strings.TrimSuffix(string(p), "\n")
	s.writes = append(s.writes, line)
	for _, chunk := range s.device.handle(line) {
		s.out <- chunk
	}
	return len(p), nil
}

func (s *fakeShell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return nil
}

// Writes returns a snapshot of all lines written to the shell.
func (s *fakeShell) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.writes))
	copy(out, s.writes)
	return out
}

// fakeTransport hands out fake shells and counts dials.
type fakeTransport struct {
	mu      sync.Mutex
	dials   int
	shells  []*fakeShell
	makeDev func() *fakeDevice
	dialErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{makeDev: newFakeDevice}
}

func (t *fakeTransport) DialShell(ctx context.Context, target sshtransport.Target, creds sshtransport.Credentials, profile sshtransport.SecurityProfile) (sshtransport.Shell, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	shell := newFakeShell(t.makeDev())
	t.shells = append(t.shells, shell)
	return shell, nil
}

func (t *fakeTransport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) LastShell() *fakeShell {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.shells) == 0 {
		return nil
	}
	return t.shells[len(t.shells)-1]
}
