package severity

import (
	"testing"

	"github.com/podwatch/podwatch/internal/types"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name     string
		event    types.ChangeEvent
		expected types.Severity
	}{
		{
			name:     "status change into CrashLoopBackOff is critical",
			event:    types.ChangeEvent{Type: types.ChangeStatus, OldValue: "Running", NewValue: "CrashLoopBackOff"},
			expected: types.SeverityCritical,
		},
		{
			name:     "status change into Failed is critical",
			event:    types.ChangeEvent{Type: types.ChangeStatus, NewValue: "Failed"},
			expected: types.SeverityCritical,
		},
		{
			name:     "node going NotReady is critical",
			event:    types.ChangeEvent{Kind: types.KindNode, Type: types.ChangeStatus, NewValue: "NotReady"},
			expected: types.SeverityCritical,
		},
		{
			name:     "status change into an unrecognized phase is warning",
			event:    types.ChangeEvent{Type: types.ChangeStatus, OldValue: "Pending", NewValue: "Running"},
			expected: types.SeverityWarning,
		},
		{
			name:     "removal is warning",
			event:    types.ChangeEvent{Type: types.ChangeRemoved, OldValue: "Running"},
			expected: types.SeverityWarning,
		},
		{
			name:     "image update is info",
			event:    types.ChangeEvent{Type: types.ChangeImage, OldValue: "api:v1", NewValue: "api:v2"},
			expected: types.SeverityInfo,
		},
		{
			name:     "new resource is info",
			event:    types.ChangeEvent{Type: types.ChangeNew, NewValue: "Running"},
			expected: types.SeverityInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.event); got != tt.expected {
				t.Errorf("Classify() = %s, expected %s", got, tt.expected)
			}
		})
	}
}
