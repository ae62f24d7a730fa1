package models

import "time"

// WakeConfig holds Wake-on-LAN settings for the database host.
type WakeConfig struct {
	MACAddress    string
	BroadcastIP   string
	Timeout       time.Duration // max time to wait for the database port
	PollInterval  time.Duration
	StabilizeWait time.Duration // wait after the port accepts connections
}

// WakeResult holds the result of waking the database host.
type WakeResult struct {
	PacketSent   bool
	TargetReady  bool
	Address      string
	WaitDuration time.Duration
	Error        error
}
