package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Spec declares one process the supervisor manages.
type Spec struct {
	Name    string
	Command []string
}

// Validate rejects specs the supervisor cannot launch.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process spec: name must be set")
	}
	if len(s.Command) == 0 || strings.TrimSpace(s.Command[0]) == "" {
		return fmt.Errorf("process %q: command must not be empty", s.Name)
	}
	return nil
}

// ProcessState is the supervisor's view of one managed process.
type ProcessState string

const (
	ProcessStopped  ProcessState = "stopped"
	ProcessStarting ProcessState = "starting"
	ProcessRunning  ProcessState = "running"
	ProcessBackoff  ProcessState = "backoff"
	ProcessStopping ProcessState = "stopping"
	// ProcessFailed marks a process that never came up at all.
	ProcessFailed ProcessState = "failed"
)

// handle wraps one running child.
type handle struct {
	cmd    *exec.Cmd
	waitCh chan error
}

// launch starts the command in its own process group so the whole subtree
// can be signaled at once.
func launch(spec Spec, stdout, stderr io.Writer) (*handle, error) {
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", spec.Name, err)
	}

	h := &handle{cmd: cmd, waitCh: make(chan error, 1)}
	go func() {
		h.waitCh <- cmd.Wait()
	}()
	return h, nil
}

func (h *handle) pid() int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// signalGroup delivers sig to the child's process group.
func (h *handle) signalGroup(sig unix.Signal) error {
	pid := h.pid()
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// terminate asks the process group to exit, escalating to SIGKILL after
// grace. Returns the child's exit error.
func (h *handle) terminate(grace time.Duration) error {
	if err := h.signalGroup(unix.SIGTERM); err != nil {
		return err
	}
	select {
	case err := <-h.waitCh:
		return err
	case <-time.After(grace):
	}
	if err := h.signalGroup(unix.SIGKILL); err != nil {
		return err
	}
	return <-h.waitCh
}
