package diff

import (
	"sort"
	"time"

	"github.com/podwatch/podwatch/internal/types"
)

// Compute compares a new snapshot set against the previous baseline and
// returns the change events between them. A nil baseline means this is
// the first observation ever: every resource yields a "new" event so
// baseline establishment stays auditable.
//
// Only status and image are diffed. Numeric usage figures flow to
// metric samples, never to change events.
func Compute(prev, next map[types.SnapshotKey]types.ResourceSnapshot, now time.Time) []types.ChangeEvent {
	var events []types.ChangeEvent

	if prev == nil {
		for _, snap := range next {
			events = append(events, initialEvent(snap, now))
		}
		sortEvents(events)
		return events
	}

	for key, current := range next {
		previous, existed := prev[key]
		if !existed {
			events = append(events, initialEvent(current, now))
			continue
		}

		if previous.Status != current.Status {
			events = append(events, types.ChangeEvent{
				Kind:       key.Kind,
				Namespace:  key.Namespace,
				Name:       key.Name,
				Type:       types.ChangeStatus,
				OldValue:   previous.Status,
				NewValue:   current.Status,
				OccurredAt: now,
			})
		}

		// Image comparison applies to pods only; nodes have no image.
		if key.Kind == types.KindPod && previous.Image != current.Image {
			events = append(events, types.ChangeEvent{
				Kind:       key.Kind,
				Namespace:  key.Namespace,
				Name:       key.Name,
				Type:       types.ChangeImage,
				OldValue:   previous.Image,
				NewValue:   current.Image,
				OccurredAt: now,
			})
		}
	}

	for key, previous := range prev {
		if _, stillPresent := next[key]; stillPresent {
			continue
		}
		events = append(events, types.ChangeEvent{
			Kind:       key.Kind,
			Namespace:  key.Namespace,
			Name:       key.Name,
			Type:       types.ChangeRemoved,
			OldValue:   previous.Status,
			NewValue:   "",
			OccurredAt: now,
		})
	}

	sortEvents(events)
	return events
}

func initialEvent(snap types.ResourceSnapshot, now time.Time) types.ChangeEvent {
	return types.ChangeEvent{
		Kind:       snap.Kind,
		Namespace:  snap.Namespace,
		Name:       snap.Name,
		Type:       types.ChangeNew,
		OldValue:   "",
		NewValue:   snap.Status,
		OccurredAt: now,
	}
}

// sortEvents orders events by key then change type so that the same
// (prev, next) pair always produces an identical sequence.
func sortEvents(events []types.ChangeEvent) {
	sort.Slice(events, func(i, j int) bool {
		ki, kj := events[i].Key().String(), events[j].Key().String()
		if ki != kj {
			return ki < kj
		}
		return events[i].Type < events[j].Type
	})
}
