package models

import "time"

// HealthStatus is the controller-reported health of an application
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "Healthy"
	HealthProgressing HealthStatus = "Progressing"
	HealthDegraded    HealthStatus = "Degraded"
	HealthSuspended   HealthStatus = "Suspended"
	HealthMissing     HealthStatus = "Missing"
	HealthUnknown     HealthStatus = "Unknown"
)

// ParseHealth maps controller strings to HealthStatus, unknown values to HealthUnknown
func ParseHealth(s string) HealthStatus {
	switch h := HealthStatus(s); h {
	case HealthHealthy, HealthProgressing, HealthDegraded, HealthSuspended, HealthMissing:
		return h
	default:
		return HealthUnknown
	}
}

// SyncStatus is the controller-reported alignment of live and desired state
type SyncStatus string

const (
	SyncSynced    SyncStatus = "Synced"
	SyncOutOfSync SyncStatus = "OutOfSync"
	SyncUnknown   SyncStatus = "Unknown"
)

// ParseSync maps controller strings to SyncStatus, unknown values to SyncUnknown
func ParseSync(s string) SyncStatus {
	switch st := SyncStatus(s); st {
	case SyncSynced, SyncOutOfSync:
		return st
	default:
		return SyncUnknown
	}
}

// DeploymentStatus is one uncached observation of an application
type DeploymentStatus struct {
	App        string       `json:"app" yaml:"app"`
	Health     HealthStatus `json:"health" yaml:"health"`
	Sync       SyncStatus   `json:"sync" yaml:"sync"`
	ObservedAt time.Time    `json:"observed_at" yaml:"observed_at"`
	Revision   string       `json:"revision,omitempty" yaml:"revision,omitempty"`
	Message    string       `json:"message,omitempty" yaml:"message,omitempty"`
}

// Ready is true only when this single observation is Healthy and Synced
func (s DeploymentStatus) Ready() bool {
	return s.Health == HealthHealthy && s.Sync == SyncSynced
}

// Failed is true for health states that do not recover on their own
func (s DeploymentStatus) Failed() bool {
	return s.Health == HealthDegraded || s.Health == HealthMissing
}
