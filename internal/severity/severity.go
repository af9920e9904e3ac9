package severity

import "github.com/podwatch/podwatch/internal/types"

// Classifier maps change events to alert levels. Status names carry
// their own weight: a transition into a degraded phase outranks the
// default level for its change type.
type Classifier struct {
	statusLevels map[string]types.Severity
	typeLevels   map[types.ChangeType]types.Severity
}

func NewClassifier() *Classifier {
	c := &Classifier{
		statusLevels: make(map[string]types.Severity),
		typeLevels:   make(map[types.ChangeType]types.Severity),
	}
	c.initializeLevels()
	return c
}

func (c *Classifier) initializeLevels() {
	// Degraded pod phases and container states
	c.statusLevels["Failed"] = types.SeverityCritical
	c.statusLevels["CrashLoopBackOff"] = types.SeverityCritical
	c.statusLevels["ImagePullBackOff"] = types.SeverityCritical
	c.statusLevels["ErrImagePull"] = types.SeverityCritical
	c.statusLevels["OOMKilled"] = types.SeverityCritical
	c.statusLevels["Evicted"] = types.SeverityCritical
	c.statusLevels["Unknown"] = types.SeverityWarning
	c.statusLevels["Pending"] = types.SeverityWarning

	// Node readiness
	c.statusLevels["NotReady"] = types.SeverityCritical

	// Baseline per change type
	c.typeLevels[types.ChangeStatus] = types.SeverityWarning
	c.typeLevels[types.ChangeRemoved] = types.SeverityWarning
	c.typeLevels[types.ChangeImage] = types.SeverityInfo
	c.typeLevels[types.ChangeNew] = types.SeverityInfo
}

// Classify returns the alert level for one change event.
func (c *Classifier) Classify(event types.ChangeEvent) types.Severity {
	if event.Type == types.ChangeStatus {
		if level, ok := c.statusLevels[event.NewValue]; ok {
			return level
		}
	}
	if level, ok := c.typeLevels[event.Type]; ok {
		return level
	}
	return types.SeverityInfo
}
