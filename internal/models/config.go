// Package models contains the data structures used throughout webmaint.
package models

import "time"

// Config holds the complete configuration for a webmaint invocation.
type Config struct {
	SharedPath  string
	Roles       map[string][]Host
	SSH         SSHConfig
	Maintenance MaintenanceSettings
	Cache       *CacheConfig    // nil if not configured
	Telegram    *TelegramConfig // nil if not configured
}

// WebHosts returns the hosts of the web role group.
func (c Config) WebHosts() []Host {
	return c.Roles[WebRole]
}

// WebRole is the role group that serves the maintenance page.
const WebRole = "web"

// MaintenanceSettings holds the defaults and display settings for maintenance windows.
type MaintenanceSettings struct {
	DefaultReason string
	DefaultType   MaintenanceType
	TimeZone      string // IANA zone name used for display, e.g. "America/New_York"
	TimeFormat    string // Go reference layout
	InputZone     string // zone used to interpret --until input; "Local" by default
	Template      string // optional template file, embedded default when empty
	Parallelism   int    // max hosts handled at once, 0 for unbounded
}

// SSHConfig holds the connection settings shared by every remote host.
type SSHConfig struct {
	Username   string
	Port       int
	KeyPath    string
	PrivateKey []byte // inline key, overrides KeyPath
	KnownHosts string // optional known_hosts file; empty disables host key checking
	Timeout    time.Duration
}
