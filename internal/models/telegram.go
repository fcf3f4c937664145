package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a maintenance notification.
type TelegramMessage struct {
	Enabled      bool // true for enable, false for disable
	Type         MaintenanceType
	Reason       string
	StartedAt    string
	EstimatedEnd string
	At           time.Time

	HostsTotal  int
	HostsFailed []string

	PurgeError string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
