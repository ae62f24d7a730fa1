package models

// SSHShutdownConfig holds the settings for powering the database host off
// after a successful operation.
type SSHShutdownConfig struct {
	Host          string // defaults to the database host
	Port          int
	Username      string
	PrivateKey    []byte // loaded from KeyPath
	KeyPath       string
	ShutdownDelay int    // minutes
	OS            string // "linux" (default) or "windows"
}

// SSHResult holds the result of an SSH command.
type SSHResult struct {
	Command    string
	CommandRun bool
	Output     string
	Error      error
}
