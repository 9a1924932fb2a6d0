package browser

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const xvfbReadyTimeout = 5 * time.Second

// startXvfb launches the virtual display headful snapshots draw into and
// waits until its X socket exists.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	socket := xSocket(display)
	deadline := time.After(xvfbReadyTimeout)
	for {
		if _, err := os.Stat(socket); err == nil {
			break
		}
		select {
		case err := <-exited:
			return fmt.Errorf("xvfb %s exited: %v", display, err)
		case <-deadline:
			cmd.Process.Kill()
			<-exited
			return fmt.Errorf("xvfb %s: no socket at %s after %s", display, socket, xvfbReadyTimeout)
		case <-time.After(50 * time.Millisecond):
		}
	}

	m.xvfb = cmd
	m.xvfbExited = exited
	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	_ = m.xvfb.Process.Kill()
	<-m.xvfbExited
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
	m.xvfb = nil
	m.xvfbExited = nil
}

// xSocket is the unix socket an X server listens on for display ":N".
func xSocket(display string) string {
	n := strings.TrimPrefix(display, ":")
	if i := strings.IndexByte(n, '.'); i >= 0 {
		n = n[:i]
	}
	return "/tmp/.X11-unix/X" + n
}
