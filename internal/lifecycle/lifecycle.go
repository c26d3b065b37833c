// Package lifecycle tracks process-level state that the health check reports.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle holds the shutdown flag and start time of a serve process.
type Lifecycle struct {
	shuttingDown atomic.Bool
	startedAt    time.Time
}

func New() *Lifecycle {
	return &Lifecycle{startedAt: time.Now()}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
// The health handler returns 503 with status shutting-down while true.
func (l *Lifecycle) SetShuttingDown(v bool) {
	l.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func (l *Lifecycle) IsShuttingDown() bool {
	return l.shuttingDown.Load()
}

// Uptime returns the time since New.
func (l *Lifecycle) Uptime() time.Duration {
	return time.Since(l.startedAt)
}
