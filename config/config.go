// Package config provides opt-in environment-backed settings for tuning the
// connection pool and recording defaults.
//
// The core library never reads the environment itself: callers that want
// env-driven tuning call Load and pass the result on.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"github.com/netgrip/netgrip/recording"
	"github.com/netgrip/netgrip/sshsession"
)

// Settings tunes the pool and recording defaults. All fields are optional;
// zero values select the library defaults.
type Settings struct {
	// MaxSessions caps concurrently open SSH sessions.
	MaxSessions int64 `envconfig:"MAX_SESSIONS" default:"100"`
	// IdleTimeout evicts sessions with no activity for this long.
	IdleTimeout string `envconfig:"IDLE_TIMEOUT" default:"5m"`
	// BootstrapTimeout bounds the wait for the initial device prompt.
	BootstrapTimeout string `envconfig:"BOOTSTRAP_TIMEOUT" default:"10s"`
	// DrainGrace bounds the post-timeout channel drain.
	DrainGrace string `envconfig:"DRAIN_GRACE" default:"5s"`
	// RecordingLevel is the default session recording level
	// (off, key_events or full).
	RecordingLevel string `envconfig:"RECORDING_LEVEL" default:"off"`
}

// Load reads NETGRIP_-prefixed environment variables into Settings.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("NETGRIP", &s); err != nil {
		return Settings{}, fmt.Errorf("load config: %w", err)
	}
	if _, err := s.ManagerOptions(); err != nil {
		return Settings{}, err
	}
	if _, err := s.Level(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ManagerOptions converts the settings into pool options.
func (s Settings) ManagerOptions() (sshsession.ManagerOptions, error) {
	opts := sshsession.ManagerOptions{MaxSessions: s.MaxSessions}
	var err error
	if opts.IdleTimeout, err = parseDuration("idle timeout", s.IdleTimeout); err != nil {
		return opts, err
	}
	if opts.BootstrapTimeout, err = parseDuration("bootstrap timeout", s.BootstrapTimeout); err != nil {
		return opts, err
	}
	if opts.DrainGrace, err = parseDuration("drain grace", s.DrainGrace); err != nil {
		return opts, err
	}
	return opts, nil
}

// Level parses the default recording level.
func (s Settings) Level() (recording.Level, error) {
	return recording.ParseLevel(s.RecordingLevel)
}
