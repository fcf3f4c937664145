package models

import (
	"fmt"
	"time"
)

// MaintenanceType selects which marker file a maintenance window controls.
type MaintenanceType string

const (
	// MaintenanceGeneral takes the whole site down.
	MaintenanceGeneral MaintenanceType = "general"
	// MaintenanceInput disables only the data-input pages.
	MaintenanceInput MaintenanceType = "input"
)

// MaintenanceTypes lists every known type, in display order.
var MaintenanceTypes = []MaintenanceType{MaintenanceGeneral, MaintenanceInput}

// ParseMaintenanceType validates a type name given on the command line or in config.
func ParseMaintenanceType(s string) (MaintenanceType, error) {
	for _, t := range MaintenanceTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid maintenance type %q: must be one of: general, input", s)
}

// MarkerName is the file name of the type-tagged sentinel.
func (t MaintenanceType) MarkerName() string {
	return "maintenance_" + string(t)
}

// PageName is the file name of the rendered maintenance page.
const PageName = "maintenance.html"

// ShortlyDisplay is shown when no end time was given.
const ShortlyDisplay = "shortly"

// MaintenanceWindow describes one enable invocation. It is never persisted.
type MaintenanceWindow struct {
	Type                MaintenanceType
	Reason              string
	StartedAt           time.Time
	StartedAtDisplay    string
	EstimatedEnd        *time.Time // nil means "shortly"
	EstimatedEndDisplay string
}

// EnableRequest holds the operator's inputs for an enable.
type EnableRequest struct {
	Type      MaintenanceType
	Reason    string // empty falls back to the configured default
	Until     string // empty means "shortly"
	AssumeYes bool   // skip the confirmation prompt
}

// HostResult holds the outcome of one host's file operations.
type HostResult struct {
	Host       Host
	Applied    bool
	RolledBack bool
	Error      error
}

// EnableResult holds the result of an enable operation.
type EnableResult struct {
	Applied    bool
	Window     MaintenanceWindow
	Hosts      []HostResult
	PurgeError error
}

// DisableResult holds the result of a disable operation.
type DisableResult struct {
	Type       MaintenanceType
	Hosts      []HostResult
	PurgeError error
}

// HostStatus reports which maintenance files are present on a host.
type HostStatus struct {
	Host    Host
	Page    bool
	Markers map[MaintenanceType]bool
	Error   error
}

// Active reports whether any maintenance type is active on the host.
func (s HostStatus) Active() bool {
	for _, on := range s.Markers {
		if on {
			return true
		}
	}
	return false
}
