// Package executil launches external programs behind an interface so callers
// can be tested without spawning processes.
package executil

import (
	"fmt"
	"os/exec"
)

// Launcher starts a program and returns without waiting for it to exit.
type Launcher interface {
	Start(name string, args ...string) error
}

// Detached starts real processes and reaps them in the background.
type Detached struct{}

func (Detached) Start(name string, args ...string) error {
	c := exec.Command(name, args...)
	if err := c.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go func() { _ = c.Wait() }()
	return nil
}
