package sshsession

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/netgrip/netgrip/devicefsm"
	"github.com/netgrip/netgrip/internal/logutil"
	"github.com/netgrip/netgrip/recording"
	"github.com/netgrip/netgrip/sshtransport"
	"github.com/netgrip/netgrip/transaction"
)

// Eviction causes used for logging and metrics labels.
const (
	evictIdle      = "idle"
	evictTransport = "transport"
	evictShutdown  = "shutdown"
)

// janitorSpec is the schedule on which idle sessions are collected.
const janitorSpec = "@every 30s"

// ManagerOptions tunes the pool. The zero value selects production defaults.
type ManagerOptions struct {
	// MaxSessions caps concurrently open connections. Default 100.
	MaxSessions int64
	// IdleTimeout evicts sessions with no successful activity for this
	// long. Default 5 minutes.
	IdleTimeout time.Duration
	// BootstrapTimeout bounds the wait for the initial prompt after
	// connecting. Default 10 seconds.
	BootstrapTimeout time.Duration
	// DrainGrace bounds the post-timeout drain before a session is
	// poisoned. Default 5 seconds.
	DrainGrace time.Duration
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.MaxSessions <= 0 {
		o.MaxSessions = 100
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.BootstrapTimeout <= 0 {
		o.BootstrapTimeout = defaultBootstrapTimeout
	}
	if o.DrainGrace <= 0 {
		o.DrainGrace = defaultDrainGrace
	}
	return o
}

// pooledSession is one cached live connection.
type pooledSession struct {
	ID      string
	Key     ConnectionKey
	Profile sshtransport.SecurityProfile

	actor  *actor
	handle *Handle

	mu           sync.Mutex
	lastActivity time.Time
}

func (p *pooledSession) touch() {
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

func (p *pooledSession) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}

// Manager is the process-wide connection pool. Sessions are keyed by
// (user, host, port, sys); only one pooled connection exists per key, and
// concurrent connects for the same key share one dial.
type Manager struct {
	mu       sync.Mutex
	sessions map[ConnectionKey]*pooledSession
	closed   bool

	transport sshtransport.Transport
	opts      ManagerOptions
	connects  singleflight.Group
	sem       *semaphore.Weighted
	janitor   *cron.Cron
}

// NewManager builds a pool over the given transport and starts its janitor.
func NewManager(transport sshtransport.Transport, opts ManagerOptions) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		sessions:  make(map[ConnectionKey]*pooledSession),
		transport: transport,
		opts:      opts,
		sem:       semaphore.NewWeighted(opts.MaxSessions),
		janitor:   cron.New(),
	}
	m.janitor.AddFunc(janitorSpec, m.evictIdleSessions)
	m.janitor.Start()
	return m
}

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the lazily initialized process-wide pool over the
// production SSH transport. A fresh pool is created if the previous one was
// shut down.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil || defaultManager.isClosed() {
		defaultManager = NewManager(sshtransport.NewSSHTransport(), ManagerOptions{})
	}
	return defaultManager
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Get returns a job handle for the keyed session, connecting on demand with
// the secure default security profile.
func (m *Manager) Get(ctx context.Context, user, host string, port int, password, sys string, cfg devicefsm.Config) (*Handle, error) {
	return m.GetWithSecurity(ctx, user, host, port, password, sys, cfg, sshtransport.SecureDefault())
}

// GetWithSecurity is Get with an explicit security profile.
func (m *Manager) GetWithSecurity(ctx context.Context, user, host string, port int, password, sys string, cfg devicefsm.Config, profile sshtransport.SecurityProfile) (*Handle, error) {
	key := ConnectionKey{User: user, Host: host, Port: port, Sys: sys}
	ps, err := m.getSession(ctx, key, password, cfg, profile, nil)
	if err != nil {
		return nil, err
	}
	return ps.handle, nil
}

// GetWithRecording is Get with full session recording installed on the actor.
func (m *Manager) GetWithRecording(ctx context.Context, user, host string, port int, password, sys string, cfg devicefsm.Config) (*Handle, *recording.Recorder, error) {
	return m.GetWithRecordingLevel(ctx, user, host, port, password, sys, cfg, recording.LevelFull)
}

// GetWithRecordingLevel is Get with recording at an explicit level.
func (m *Manager) GetWithRecordingLevel(ctx context.Context, user, host string, port int, password, sys string, cfg devicefsm.Config, level recording.Level) (*Handle, *recording.Recorder, error) {
	key := ConnectionKey{User: user, Host: host, Port: port, Sys: sys}
	rec := recording.NewRecorder(level)
	ps, err := m.getSession(ctx, key, password, cfg, sshtransport.SecureDefault(), rec)
	if err != nil {
		return nil, nil, err
	}
	return ps.handle, rec, nil
}

// ExecuteTxBlock acquires the keyed session and runs one transaction block on
// it. The returned recorder is nil when level is off.
func (m *Manager) ExecuteTxBlock(ctx context.Context, user, host string, port int, password, sys string, cfg devicefsm.Config, block transaction.Block, level recording.Level) (transaction.Result, *recording.Recorder, error) {
	handle, rec, err := m.getTxSession(ctx, user, host, port, password, sys, cfg, level)
	if err != nil {
		return transaction.Result{}, nil, err
	}
	res, err := transaction.NewEngine(handle, rec).RunBlock(ctx, block)
	return res, rec, err
}

// ExecuteTxWorkflow acquires the keyed session and runs a workflow on it.
func (m *Manager) ExecuteTxWorkflow(ctx context.Context, user, host string, port int, password, sys string, cfg devicefsm.Config, workflow transaction.Workflow, level recording.Level) (transaction.WorkflowResult, *recording.Recorder, error) {
	handle, rec, err := m.getTxSession(ctx, user, host, port, password, sys, cfg, level)
	if err != nil {
		return transaction.WorkflowResult{}, nil, err
	}
	res, err := transaction.NewEngine(handle, rec).RunWorkflow(ctx, workflow)
	return res, rec, err
}

func (m *Manager) getTxSession(ctx context.Context, user, host string, port int, password, sys string, cfg devicefsm.Config, level recording.Level) (*Handle, *recording.Recorder, error) {
	if level == recording.LevelOff {
		handle, err := m.Get(ctx, user, host, port, password, sys, cfg)
		return handle, nil, err
	}
	return m.GetWithRecordingLevel(ctx, user, host, port, password, sys, cfg, level)
}

func (m *Manager) getSession(ctx context.Context, key ConnectionKey, password string, cfg devicefsm.Config, profile sshtransport.SecurityProfile, rec *recording.Recorder) (*pooledSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if ps, ok := m.sessions[key]; ok {
		if ps.actor.healthy() {
			if rec != nil {
				ps.actor.setRecorder(rec)
			}
			ps.touch()
			m.mu.Unlock()
			return ps, nil
		}
		// Stale entry whose eviction has not landed yet.
		m.mu.Unlock()
		m.evictSession(key, ps.actor, evictTransport)
		m.mu.Lock()
	}
	m.mu.Unlock()

	v, err, _ := m.connects.Do(key.String(), func() (interface{}, error) {
		return m.connect(ctx, key, password, cfg, profile, rec)
	})
	if err != nil {
		connectsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	ps := v.(*pooledSession)
	if rec != nil {
		ps.actor.setRecorder(rec)
	}
	return ps, nil
}

// connect dials, builds the handler and actor, waits for the initial prompt
// and installs the session. Runs inside the per-key singleflight.
func (m *Manager) connect(ctx context.Context, key ConnectionKey, password string, cfg devicefsm.Config, profile sshtransport.SecurityProfile, rec *recording.Recorder) (*pooledSession, error) {
	// A concurrent caller may have installed the session while this call
	// waited in the flight queue.
	m.mu.Lock()
	if ps, ok := m.sessions[key]; ok && ps.actor.healthy() {
		ps.touch()
		m.mu.Unlock()
		return ps, nil
	}
	m.mu.Unlock()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire connection slot: %w", err)
	}

	shell, err := m.transport.DialShell(ctx, sshtransport.Target{Host: key.Host, Port: key.Port},
		sshtransport.Credentials{Username: key.User, Password: password}, profile)
	if err != nil {
		m.sem.Release(1)
		return nil, err
	}

	handler, err := devicefsm.New(cfg)
	if err != nil {
		shell.Close()
		m.sem.Release(1)
		return nil, err
	}
	if key.Sys != "" {
		handler.SetSysContext(key.Sys)
	}

	ps := &pooledSession{
		ID:           uuid.NewString(),
		Key:          key,
		Profile:      profile,
		lastActivity: time.Now(),
	}
	a := newActor(key, shell, handler, rec,
		func(cause string) { m.evictSession(key, ps.actor, evictTransport) },
		ps.touch,
	)
	a.bootstrapTimeout = m.opts.BootstrapTimeout
	a.drainGrace = m.opts.DrainGrace
	ps.actor = a
	ps.handle = &Handle{key: key, a: a}

	a.startPump()
	if err := a.bootstrapConnect(); err != nil {
		a.abort()
		m.sem.Release(1)
		return nil, err
	}

	fsmPrompt, _ := handler.CurrentState()
	rec.Record(recording.Event{
		Kind:           recording.KindConnectionEstablished,
		DeviceAddr:     key.Addr(),
		PromptAfter:    a.prompt,
		FSMPromptAfter: fsmPrompt,
	})
	go a.run()

	m.mu.Lock()
	m.sessions[key] = ps
	m.mu.Unlock()

	poolSessions.Inc()
	connectsTotal.WithLabelValues("ok").Inc()
	log.Printf("[pool] connected %s (profile %s)", logutil.SanitizeForLog(key.String()), profile.Name)
	return ps, nil
}

// evictSession removes one session from the registry and tears its actor
// down. The actor identity guards against evicting a replacement session
// installed under the same key.
func (m *Manager) evictSession(key ConnectionKey, a *actor, cause string) {
	m.mu.Lock()
	ps, ok := m.sessions[key]
	if !ok || ps.actor != a {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, key)
	m.mu.Unlock()

	ps.actor.shutdown()
	m.sem.Release(1)
	poolSessions.Dec()
	evictionsTotal.WithLabelValues(cause).Inc()
	log.Printf("[pool] evicted %s (%s)", logutil.SanitizeForLog(key.String()), cause)
}

// evictIdleSessions is the janitor pass: sessions idle past the timeout are
// closed and their queued jobs failed.
func (m *Manager) evictIdleSessions() {
	cutoff := time.Now().Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	type victim struct {
		key ConnectionKey
		a   *actor
	}
	var victims []victim
	for key, ps := range m.sessions {
		if ps.idleSince().Before(cutoff) {
			victims = append(victims, victim{key: key, a: ps.actor})
		}
	}
	m.mu.Unlock()

	for _, v := range victims {
		m.evictSession(v.key, v.a, evictIdle)
	}
}

// SessionCount returns the number of pooled sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops the janitor and drains every actor. Queued jobs fail with
// ErrChannelDisconnect; subsequent Gets fail with ErrManagerClosed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	victims := make([]*pooledSession, 0, len(m.sessions))
	for _, ps := range m.sessions {
		victims = append(victims, ps)
	}
	m.sessions = make(map[ConnectionKey]*pooledSession)
	m.mu.Unlock()

	ctx := m.janitor.Stop()
	<-ctx.Done()

	for _, ps := range victims {
		ps.actor.shutdown()
		m.sem.Release(1)
		poolSessions.Dec()
		evictionsTotal.WithLabelValues(evictShutdown).Inc()
	}
	log.Printf("[pool] shut down, closed %d session(s)", len(victims))
}
