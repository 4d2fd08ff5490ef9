package resilience

import (
	"errors"
	"testing"
	"time"
)

var errRemote = errors.New("remote failure")

func failing() error { return errRemote }
func succeeding() error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("test", Settings{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		if err := b.Execute(failing); !errors.Is(err, errRemote) {
			t.Fatalf("call %d: expected remote error, got %v", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}
	if err := b.Execute(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("test", Settings{FailureThreshold: 3, Cooldown: time.Minute})

	b.Execute(failing)
	b.Execute(failing)
	b.Execute(succeeding)
	b.Execute(failing)
	b.Execute(failing)

	if b.State() != StateClosed {
		t.Errorf("expected closed state after interleaved success, got %s", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := New("test", Settings{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	b.Execute(failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	// Successful probe closes the circuit.
	if err := b.Execute(succeeding); err != nil {
		t.Fatalf("probe should be admitted, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := New("test", Settings{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	b.Execute(failing)
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(failing); !errors.Is(err, errRemote) {
		t.Fatalf("probe should run, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("expected reopened circuit after failed probe, got %s", b.State())
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := New("defaults", Settings{})
	if b.settings.FailureThreshold != 5 {
		t.Errorf("default threshold = %d, want 5", b.settings.FailureThreshold)
	}
	if b.settings.Cooldown != 60*time.Second {
		t.Errorf("default cooldown = %s, want 60s", b.settings.Cooldown)
	}
}
