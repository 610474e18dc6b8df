// Package swap - Debounced backup scheduling.
package swap

import (
	"sync"
	"time"
)

const defaultBackupDelay = 3 * time.Second

// BackupTrigger coalesces bursts of state mutations into a single backup
// snapshot after a quiet period. Many outputs in one transaction would
// otherwise each schedule their own snapshot.
type BackupTrigger struct {
	mu      sync.Mutex
	timer   *time.Timer
	delay   time.Duration
	run     func()
	stopped bool
}

// NewBackupTrigger creates a trigger that invokes run once activity has been
// quiet for delay.
func NewBackupTrigger(delay time.Duration, run func()) *BackupTrigger {
	if delay <= 0 {
		delay = defaultBackupDelay
	}
	return &BackupTrigger{delay: delay, run: run}
}

// Arm schedules (or re-schedules) the backup. Calling Arm during the quiet
// period restarts it.
func (t *BackupTrigger) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, t.run)
}

// Stop cancels any pending backup and disables the trigger.
func (t *BackupTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
