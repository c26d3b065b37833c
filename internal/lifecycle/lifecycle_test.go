package lifecycle

import (
	"testing"
	"time"
)

func TestLifecycle_ShuttingDown(t *testing.T) {
	l := New()
	if l.IsShuttingDown() {
		t.Fatal("IsShuttingDown() = true on a new Lifecycle")
	}
	l.SetShuttingDown(true)
	if !l.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true)")
	}
	l.SetShuttingDown(false)
	if l.IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false)")
	}
}

func TestLifecycle_Uptime(t *testing.T) {
	l := New()
	time.Sleep(5 * time.Millisecond)
	if up := l.Uptime(); up < 5*time.Millisecond {
		t.Errorf("Uptime() = %v, want >= 5ms", up)
	}
}
