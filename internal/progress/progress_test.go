package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestNewTrackerTo(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewTrackerTo(&buf, "express", 25)
	if tracker.bar == nil {
		t.Fatal("tracker.bar should not be nil")
	}
	if tracker.label != "express" {
		t.Errorf("tracker.label = %q, want %q", tracker.label, "express")
	}
}

func TestTrackerTickConcurrent(t *testing.T) {
	tracker := NewTrackerTo(&bytes.Buffer{}, "express", 100)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				tracker.Tick()
			}
		}()
	}
	wg.Wait()

	if got := tracker.bar.State().CurrentNum; got != 100 {
		t.Errorf("CurrentNum = %d, want 100", got)
	}
	tracker.FinishSuccess()
}

func TestTrackerDescribe(t *testing.T) {
	tracker := NewTrackerTo(&bytes.Buffer{}, "express", 3)
	tracker.Describe("a1b2c3d")
	if got := tracker.bar.State().Description; got != "express a1b2c3d" {
		t.Errorf("Description = %q", got)
	}
}

func TestTrackerFinishMessages(t *testing.T) {
	var skipped bytes.Buffer
	NewTrackerTo(&skipped, "express", 3).FinishSkipped("up to date")
	if !strings.Contains(skipped.String(), "express skipped (up to date)") {
		t.Errorf("skip message missing: %q", skipped.String())
	}

	var failed bytes.Buffer
	NewTrackerTo(&failed, "express", 3).FinishError(errors.New("SCANNED: boom"))
	if !strings.Contains(failed.String(), "express error: SCANNED: boom") {
		t.Errorf("error message missing: %q", failed.String())
	}
}

func TestNilTrackerIsNoop(t *testing.T) {
	var tracker *Tracker
	tracker.Describe("a1b2c3d")
	tracker.Tick()
	tracker.FinishError(errors.New("ignored"))
	tracker.FinishSuccess()
}
