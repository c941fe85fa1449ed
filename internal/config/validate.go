package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateActions(); err != nil {
		return err
	}
	return c.validateProcesses()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.VaultDir) == "" {
		return errors.New("paths.vault_dir must be set")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.BackoffCap < c.Supervisor.BackoffBase {
		return fmt.Errorf("supervisor.backoff_cap (%d) must be >= supervisor.backoff_base (%d)",
			c.Supervisor.BackoffCap, c.Supervisor.BackoffBase)
	}
	return nil
}

func (c *Config) validateActions() error {
	for kind, command := range c.Actions {
		if len(command) == 0 {
			return fmt.Errorf("actions.%s must name a command", kind)
		}
		if strings.TrimSpace(command[0]) == "" {
			return fmt.Errorf("actions.%s has an empty executable", kind)
		}
	}
	return nil
}

func (c *Config) validateProcesses() error {
	seen := make(map[string]struct{}, len(c.Processes))
	for i, proc := range c.Processes {
		name := strings.TrimSpace(proc.Name)
		if name == "" {
			return fmt.Errorf("process[%d].name must be set", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("process name %q declared twice", name)
		}
		seen[name] = struct{}{}
		if !proc.Disabled && len(proc.Command) == 0 {
			return fmt.Errorf("process %q must declare a command", name)
		}
	}
	return nil
}
