package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage summarises one backup or restore operation.
type TelegramMessage struct {
	Success   bool
	Operation OperationKind
	Database  string
	Target    string // artifact path or restore target
	Strategy  string
	StartTime time.Time
	Duration  time.Duration

	ArtifactSize int64
	UploadedTo   string

	ErrorMessage string
	FailedStep   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
