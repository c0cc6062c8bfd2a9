package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lucasnoah/sitefactory/internal/log"
)

// WritePIDFile writes pid to pidFile, creating its directory.
func WritePIDFile(pidFile string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o750); err != nil {
		return fmt.Errorf("create PID file directory: %w", err)
	}
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", pid)), 0o600); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads the pid stored in pidFile. A missing file returns an
// error satisfying errors.Is(err, os.ErrNotExist).
func ReadPIDFile(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, fmt.Errorf("PID file %s is empty", pidFile)
	}
	var pid int
	if _, err := fmt.Sscanf(s, "%d", &pid); err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s: %q", pidFile, s)
	}
	return pid, nil
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// Probe reports the pid recorded in pidFile and whether that process is
// alive. A stale or unreadable PID file is removed.
func Probe(pidFile string) (pid int, alive bool, err error) {
	pid, err = ReadPIDFile(pidFile)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		log.Warn("removing unreadable PID file: %v", err)
		return 0, false, removePID(pidFile)
	}
	if processAlive(pid) {
		return pid, true, nil
	}
	log.Warn("removing stale PID file for dead process %d", pid)
	return pid, false, removePID(pidFile)
}

// AcquirePID records the current process in pidFile. It fails with
// ErrAlreadyRunning when another live process holds the file; a file that
// already names this process (a re-born child) is accepted.
func AcquirePID(pidFile string) error {
	self := os.Getpid()
	pid, alive, err := Probe(pidFile)
	if err != nil {
		return err
	}
	if alive && pid != self {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	return WritePIDFile(pidFile, self)
}

// ReleasePID removes pidFile if it still names the current process.
func ReleasePID(pidFile string) error {
	pid, err := ReadPIDFile(pidFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && pid != os.Getpid() {
		return nil
	}
	return removePID(pidFile)
}

func removePID(pidFile string) error {
	if err := os.Remove(pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}
