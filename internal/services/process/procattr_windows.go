//go:build windows

package process

import "os/exec"

// configureProcessGroup keeps the default cancel behaviour (TerminateProcess).
func configureProcessGroup(_ *exec.Cmd) {}
