package diff

import (
	"testing"
	"time"

	"github.com/podwatch/podwatch/internal/types"
)

func snapshotSet(snaps ...types.ResourceSnapshot) map[types.SnapshotKey]types.ResourceSnapshot {
	set := make(map[types.SnapshotKey]types.ResourceSnapshot, len(snaps))
	for _, s := range snaps {
		set[s.Key()] = s
	}
	return set
}

func pod(namespace, name, status, image string) types.ResourceSnapshot {
	return types.ResourceSnapshot{
		Kind:      types.KindPod,
		Namespace: namespace,
		Name:      name,
		Status:    status,
		Image:     image,
	}
}

func node(name, status string) types.ResourceSnapshot {
	return types.ResourceSnapshot{
		Kind:   types.KindNode,
		Name:   name,
		Status: status,
	}
}

func eventsByType(events []types.ChangeEvent) map[types.ChangeType][]types.ChangeEvent {
	byType := make(map[types.ChangeType][]types.ChangeEvent)
	for _, e := range events {
		byType[e.Type] = append(byType[e.Type], e)
	}
	return byType
}

func TestCompute_FirstCycleEmitsInitialObservations(t *testing.T) {
	now := time.Now()
	next := snapshotSet(
		pod("default", "api", "Running", "api:v1"),
		node("worker-1", "Ready"),
	)

	events := Compute(nil, next, now)

	if len(events) != 2 {
		t.Fatalf("Expected 2 initial events, got %d", len(events))
	}
	for _, e := range events {
		if e.Type != types.ChangeNew {
			t.Errorf("Expected new event on first cycle, got %s", e.Type)
		}
		if e.OldValue != "" {
			t.Errorf("Initial event should have empty old value, got %q", e.OldValue)
		}
	}
}

func TestCompute_NoEventsForUnchanged(t *testing.T) {
	prev := snapshotSet(pod("default", "api", "Running", "api:v1"))
	next := snapshotSet(pod("default", "api", "Running", "api:v1"))

	events := Compute(prev, next, time.Now())
	if len(events) != 0 {
		t.Fatalf("Expected no events for identical sets, got %d: %+v", len(events), events)
	}
}

func TestCompute_StatusChange(t *testing.T) {
	prev := snapshotSet(pod("default", "api", "Running", "api:v1"))
	next := snapshotSet(pod("default", "api", "CrashLoopBackOff", "api:v1"))

	events := Compute(prev, next, time.Now())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Type != types.ChangeStatus {
		t.Errorf("Expected status_change, got %s", e.Type)
	}
	if e.OldValue != "Running" || e.NewValue != "CrashLoopBackOff" {
		t.Errorf("Expected Running -> CrashLoopBackOff, got %s -> %s", e.OldValue, e.NewValue)
	}
}

func TestCompute_StatusAndImageChangeBothFire(t *testing.T) {
	prev := snapshotSet(pod("default", "api", "Running", "api:v1"))
	next := snapshotSet(pod("default", "api", "Pending", "api:v2"))

	events := Compute(prev, next, time.Now())
	byType := eventsByType(events)

	if len(byType[types.ChangeStatus]) != 1 {
		t.Errorf("Expected exactly 1 status_change, got %d", len(byType[types.ChangeStatus]))
	}
	if len(byType[types.ChangeImage]) != 1 {
		t.Errorf("Expected exactly 1 image_change, got %d", len(byType[types.ChangeImage]))
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 events total, got %d", len(events))
	}
}

func TestCompute_NodesNeverEmitImageChanges(t *testing.T) {
	prevNode := node("worker-1", "Ready")
	nextNode := node("worker-1", "Ready")
	// Image is pod-only; a stray value on a node must not be diffed.
	prevNode.Image = "a"
	nextNode.Image = "b"

	events := Compute(snapshotSet(prevNode), snapshotSet(nextNode), time.Now())
	if len(events) != 0 {
		t.Fatalf("Expected no events for node image difference, got %d", len(events))
	}
}

func TestCompute_RemovedCarriesLastKnownValue(t *testing.T) {
	prev := snapshotSet(pod("default", "api", "Running", "api:v1"))
	next := snapshotSet()

	events := Compute(prev, next, time.Now())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Type != types.ChangeRemoved {
		t.Errorf("Expected removed, got %s", events[0].Type)
	}
	if events[0].OldValue != "Running" {
		t.Errorf("Removed event should carry last status, got %q", events[0].OldValue)
	}
}

func TestCompute_MixedScenario(t *testing.T) {
	// Baseline {A: Running}, next {A: CrashLoopBackOff, B: Running}
	prev := snapshotSet(pod("default", "a", "Running", "a:v1"))
	next := snapshotSet(
		pod("default", "a", "CrashLoopBackOff", "a:v1"),
		pod("default", "b", "Running", "b:v1"),
	)

	events := Compute(prev, next, time.Now())
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}

	byType := eventsByType(events)
	if sc := byType[types.ChangeStatus]; len(sc) != 1 || sc[0].Name != "a" {
		t.Errorf("Expected status_change for a, got %+v", sc)
	}
	if nw := byType[types.ChangeNew]; len(nw) != 1 || nw[0].Name != "b" {
		t.Errorf("Expected new for b, got %+v", nw)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	prev := snapshotSet(
		pod("default", "a", "Running", "a:v1"),
		pod("default", "b", "Running", "b:v1"),
		pod("prod", "c", "Running", "c:v1"),
	)
	next := snapshotSet(
		pod("default", "a", "Failed", "a:v2"),
		pod("prod", "c", "Running", "c:v1"),
		pod("prod", "d", "Pending", "d:v1"),
	)

	now := time.Now()
	first := Compute(prev, next, now)
	for i := 0; i < 10; i++ {
		again := Compute(prev, next, now)
		if len(again) != len(first) {
			t.Fatalf("Event count varies between runs: %d vs %d", len(first), len(again))
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("Event sequence differs at %d: %+v vs %+v", j, first[j], again[j])
			}
		}
	}
}
