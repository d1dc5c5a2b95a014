package metrics

import (
	"testing"
	"time"
)

func TestModuleCounters_SnapshotZeroValue(t *testing.T) {
	var c ModuleCounters
	if snap := c.Snapshot(); snap != (ModuleSnapshot{}) {
		t.Errorf("expected zero snapshot before any Record, got %+v", snap)
	}
}

func TestModuleCounters_RecordAccumulates(t *testing.T) {
	var c ModuleCounters
	c.Record(100*time.Millisecond, false)
	c.Record(300*time.Millisecond, true)

	snap := c.Snapshot()
	if snap.RequestsProcessed != 2 {
		t.Errorf("expected 2 requests processed, got %d", snap.RequestsProcessed)
	}
	if snap.AvgProcessingTimeMs != 200 {
		t.Errorf("expected average of 200ms, got %v", snap.AvgProcessingTimeMs)
	}
	if snap.ErrorRate != 0.5 {
		t.Errorf("expected error rate of 0.5, got %v", snap.ErrorRate)
	}
}

func TestModuleCounters_Reset(t *testing.T) {
	var c ModuleCounters
	c.Record(50*time.Millisecond, true)
	c.Reset()

	if snap := c.Snapshot(); snap != (ModuleSnapshot{}) {
		t.Errorf("expected zero snapshot after Reset, got %+v", snap)
	}
}
