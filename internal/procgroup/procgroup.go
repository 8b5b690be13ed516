//go:build unix

// Package procgroup launches child processes as leaders of their own process
// group and tears the whole group down.
package procgroup

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

const (
	pollInterval = 20 * time.Millisecond
	killWait     = 2 * time.Second
)

// Setpgid makes cmd the leader of a new process group once started. The
// group id equals the leader's pid.
func Setpgid(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pgid = 0
}

// Terminate sends SIGTERM to every process of the group and waits, up to
// grace, for the leader to be reaped through exited and for the rest of the
// group to go away. Anything left is sent SIGKILL. It returns once the group
// is gone, or with an error if it outlives killWait.
func Terminate(pgid int, exited <-chan struct{}, grace time.Duration) error {
	if err := signal(pgid, syscall.SIGTERM); err != nil {
		return err
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	select {
	case <-exited:
		if waitGone(pgid, deadline.C) {
			return nil
		}
	case <-deadline.C:
	}

	if err := signal(pgid, syscall.SIGKILL); err != nil {
		return err
	}
	<-exited

	after := time.NewTimer(killWait)
	defer after.Stop()
	if !waitGone(pgid, after.C) {
		return fmt.Errorf("process group %d still alive after SIGKILL", pgid)
	}
	return nil
}

// Reap tears down what is left of a group whose leader already exited.
func Reap(pgid int, grace time.Duration) error {
	exited := make(chan struct{})
	close(exited)
	return Terminate(pgid, exited, grace)
}

// waitGone polls the group until it is empty or stop fires.
func waitGone(pgid int, stop <-chan time.Time) bool {
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		if !Alive(pgid) {
			return true
		}
		select {
		case <-tick.C:
		case <-stop:
			return !Alive(pgid)
		}
	}
}

// Alive reports whether any process of the group still exists.
func Alive(pgid int) bool {
	return syscall.Kill(-pgid, 0) == nil
}

func signal(pgid int, sig syscall.Signal) error {
	err := syscall.Kill(-pgid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// already gone
		return nil
	}
	return err
}
