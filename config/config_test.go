package config

import (
	"testing"
	"time"

	"github.com/netgrip/netgrip/recording"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts, err := s.ManagerOptions()
	if err != nil {
		t.Fatalf("ManagerOptions: %v", err)
	}
	if opts.MaxSessions != 100 {
		t.Errorf("MaxSessions = %d, want 100", opts.MaxSessions)
	}
	if opts.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v, want 5m", opts.IdleTimeout)
	}
	level, err := s.Level()
	if err != nil || level != recording.LevelOff {
		t.Errorf("Level = %v, %v", level, err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("NETGRIP_MAX_SESSIONS", "5")
	t.Setenv("NETGRIP_IDLE_TIMEOUT", "90s")
	t.Setenv("NETGRIP_RECORDING_LEVEL", "full")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts, err := s.ManagerOptions()
	if err != nil {
		t.Fatalf("ManagerOptions: %v", err)
	}
	if opts.MaxSessions != 5 || opts.IdleTimeout != 90*time.Second {
		t.Errorf("opts = %+v", opts)
	}
	if level, _ := s.Level(); level != recording.LevelFull {
		t.Errorf("level = %v, want full", level)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("NETGRIP_IDLE_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_RejectsNegativeDuration(t *testing.T) {
	t.Setenv("NETGRIP_DRAIN_GRACE", "-5s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestLoad_RejectsUnknownRecordingLevel(t *testing.T) {
	t.Setenv("NETGRIP_RECORDING_LEVEL", "verbose")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown recording level")
	}
}
