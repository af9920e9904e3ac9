package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/severity"
	"github.com/podwatch/podwatch/internal/types"
)

// Gate decides whether a change event becomes an alert and whether
// that alert is dispatched now. Every enabled event is recorded as an
// AlertRecord for audit; dispatch additionally requires a matching
// alert window.
type Gate struct {
	classifier *severity.Classifier
}

func NewGate() *Gate {
	return &Gate{classifier: severity.NewClassifier()}
}

// Evaluate returns the alert built from an event and whether it should
// be dispatched at the given wall-clock time. Windows are compared
// against the clock of now's location, so callers pass local time to
// match how operators write schedules. A nil alert means the event's
// change type is disabled in config and nothing is recorded.
func (g *Gate) Evaluate(event types.ChangeEvent, cfg config.Config, now time.Time) (*types.AlertRecord, bool) {
	if !typeEnabled(event.Type, cfg) {
		return nil, false
	}

	level := g.classifier.Classify(event)
	alert := &types.AlertRecord{
		ID:        uuid.NewString(),
		Subject:   subject(event),
		Message:   message(event),
		Level:     level,
		Namespace: event.Namespace,
		Name:      event.Name,
		CreatedAt: now.UTC(),
	}

	return alert, g.shouldFire(level, event.Namespace, cfg.AlertSchedule, now)
}

func typeEnabled(ct types.ChangeType, cfg config.Config) bool {
	switch ct {
	case types.ChangeImage:
		return cfg.Monitoring.AlertOnImageUpdate
	default:
		// Status transitions, appearances, and removals share the
		// status-change toggle.
		return cfg.Monitoring.AlertOnStatusChange
	}
}

// shouldFire reports whether any configured window admits this level
// and namespace at the given time. Evaluation errors fail open: a
// broken schedule must not silently starve operators of alerts.
func (g *Gate) shouldFire(level types.Severity, namespace string, windows []config.AlertWindow, now time.Time) bool {
	for _, w := range windows {
		matches, err := windowMatches(w, level, namespace, now)
		if err != nil {
			klog.Errorf("Failed to evaluate alert window [%s-%s]: %v; firing anyway", w.Start, w.End, err)
			return true
		}
		if matches {
			return true
		}
	}
	return false
}

func windowMatches(w config.AlertWindow, level types.Severity, namespace string, now time.Time) (bool, error) {
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false, fmt.Errorf("invalid window start %q: %w", w.Start, err)
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false, fmt.Errorf("invalid window end %q: %w", w.End, err)
	}

	minuteOfDay := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if minuteOfDay < startMin || minuteOfDay > endMin {
		return false, nil
	}

	if !containsString(w.Levels, string(level)) {
		return false, nil
	}

	// Empty namespace list matches every namespace.
	if len(w.Namespaces) > 0 && !containsString(w.Namespaces, namespace) {
		return false, nil
	}
	return true, nil
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func subject(event types.ChangeEvent) string {
	switch event.Type {
	case types.ChangeStatus:
		return fmt.Sprintf("%s status change: %s", kindLabel(event.Kind), event.Name)
	case types.ChangeImage:
		return fmt.Sprintf("Pod image update: %s", event.Name)
	case types.ChangeNew:
		return fmt.Sprintf("New %s detected: %s", event.Kind, event.Name)
	case types.ChangeRemoved:
		return fmt.Sprintf("%s removed: %s", kindLabel(event.Kind), event.Name)
	default:
		return fmt.Sprintf("%s change: %s", kindLabel(event.Kind), event.Name)
	}
}

func message(event types.ChangeEvent) string {
	where := event.Name
	if event.Namespace != "" {
		where = fmt.Sprintf("%s in namespace %s", event.Name, event.Namespace)
	}
	switch event.Type {
	case types.ChangeStatus:
		return fmt.Sprintf("%s %s changed from %s to %s",
			kindLabel(event.Kind), where, event.OldValue, event.NewValue)
	case types.ChangeImage:
		return fmt.Sprintf("Pod %s updated from %s to %s", where, event.OldValue, event.NewValue)
	case types.ChangeNew:
		return fmt.Sprintf("%s %s observed with status %s", kindLabel(event.Kind), where, event.NewValue)
	case types.ChangeRemoved:
		return fmt.Sprintf("%s %s removed (last status %s)", kindLabel(event.Kind), where, event.OldValue)
	default:
		return fmt.Sprintf("%s %s changed", kindLabel(event.Kind), where)
	}
}

func kindLabel(kind types.ResourceKind) string {
	if kind == types.KindNode {
		return "Node"
	}
	return "Pod"
}
