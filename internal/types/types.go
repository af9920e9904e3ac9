package types

import (
	"fmt"
	"time"
)

// ResourceKind distinguishes the two observed resource classes.
type ResourceKind string

const (
	KindPod  ResourceKind = "pod"
	KindNode ResourceKind = "node"
)

// SnapshotKey uniquely identifies an observed resource.
type SnapshotKey struct {
	Kind      ResourceKind `json:"kind"`
	Namespace string       `json:"namespace"`
	Name      string       `json:"name"`
}

func (k SnapshotKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Namespace, k.Name)
}

// ResourceUsage holds humanized resource figures for one snapshot.
type ResourceUsage struct {
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
	Disk   string `json:"disk"`
}

// PortInfo describes one container port and its service exposure.
type PortInfo struct {
	Port         int32  `json:"port"`
	Protocol     string `json:"protocol"`
	Name         string `json:"name,omitempty"`
	Exposed      bool   `json:"is_exposed"`
	ServiceName  string `json:"service_name,omitempty"`
	ServicePort  int32  `json:"service_port,omitempty"`
	LoadBalancer bool   `json:"load_balancer"`
	ExternalIP   string `json:"external_ip,omitempty"`
}

// ResourceSnapshot is the observed state of one resource at one poll.
// Snapshots are immutable; the next poll supersedes them wholesale.
type ResourceSnapshot struct {
	Kind       ResourceKind  `json:"kind"`
	Namespace  string        `json:"namespace"`
	Name       string        `json:"name"`
	Status     string        `json:"status"`
	Node       string        `json:"node,omitempty"`
	Image      string        `json:"image,omitempty"`
	InternalIP string        `json:"internal_ip,omitempty"`
	ExternalIP string        `json:"external_ip,omitempty"`
	Ports      []PortInfo    `json:"ports,omitempty"`
	Resources  ResourceUsage `json:"resources"`
	CreatedAt  time.Time     `json:"created_at,omitempty"`
	ObservedAt time.Time     `json:"observed_at"`
}

func (s ResourceSnapshot) Key() SnapshotKey {
	return SnapshotKey{Kind: s.Kind, Namespace: s.Namespace, Name: s.Name}
}

// ChangeType classifies a detected transition between two polls.
type ChangeType string

const (
	ChangeStatus  ChangeType = "status_change"
	ChangeImage   ChangeType = "image_change"
	ChangeNew     ChangeType = "new"
	ChangeRemoved ChangeType = "removed"
)

// ChangeEvent records one detected difference between consecutive
// observations of the same resource. Never mutated after creation.
type ChangeEvent struct {
	Kind       ResourceKind `json:"kind"`
	Namespace  string       `json:"namespace"`
	Name       string       `json:"name"`
	Type       ChangeType   `json:"change_type"`
	OldValue   string       `json:"old_value"`
	NewValue   string       `json:"new_value"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func (e ChangeEvent) Key() SnapshotKey {
	return SnapshotKey{Kind: e.Kind, Namespace: e.Namespace, Name: e.Name}
}

// MetricSample is one per-poll resource usage measurement.
type MetricSample struct {
	Namespace  string    `json:"namespace"`
	Name       string    `json:"name"`
	CPU        string    `json:"cpu_usage"`
	Memory     string    `json:"memory_usage"`
	Disk       string    `json:"disk_usage"`
	CapturedAt time.Time `json:"captured_at"`
}

// Severity is the alert level attached to a fired event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertRecord is one fired alert decision, recorded independently of
// whether any destination actually received it.
type AlertRecord struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Level     Severity  `json:"level"`
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelType names a delivery transport class.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelChatAPI ChannelType = "chat-api"
	ChannelSMS     ChannelType = "sms"
	ChannelBot     ChannelType = "bot"
)

// AlertDestination is one configured notification endpoint.
type AlertDestination struct {
	ID      string      `json:"id"`
	Channel ChannelType `json:"channel"`
	Address string      `json:"address"`
	Enabled bool        `json:"enabled"`
}

// DeliveryStatus is the terminal outcome of one dispatch attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryOutcome records one dispatch attempt to one destination.
type DeliveryOutcome struct {
	AlertID       string         `json:"alert_id"`
	DestinationID string         `json:"destination_id"`
	Status        DeliveryStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	AttemptedAt   time.Time      `json:"attempted_at"`
}

// NodeStats is the current aggregate view of one node.
type NodeStats struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	CPU            string `json:"cpu"`
	Memory         string `json:"memory"`
	Pods           int    `json:"pods"`
	CapacityCPU    string `json:"capacity_cpu"`
	CapacityMemory string `json:"capacity_memory"`
}
