package swap

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBackupTriggerDebounces(t *testing.T) {
	var runs atomic.Int32

	trigger := NewBackupTrigger(50*time.Millisecond, func() {
		runs.Add(1)
	})
	defer trigger.Stop()

	// A burst of mutations schedules exactly one snapshot.
	for i := 0; i < 5; i++ {
		trigger.Arm()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs after burst = %d, want 1", got)
	}

	// A later, separate mutation schedules another one.
	trigger.Arm()
	time.Sleep(150 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Errorf("runs after second arm = %d, want 2", got)
	}
}

func TestBackupTriggerStop(t *testing.T) {
	var runs atomic.Int32

	trigger := NewBackupTrigger(20*time.Millisecond, func() {
		runs.Add(1)
	})

	trigger.Arm()
	trigger.Stop()

	time.Sleep(80 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("runs after stop = %d, want 0", got)
	}

	// Arming a stopped trigger is a no-op.
	trigger.Arm()
	time.Sleep(80 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("runs after arm-when-stopped = %d, want 0", got)
	}
}
