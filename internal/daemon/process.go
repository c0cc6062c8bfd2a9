package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tail "github.com/hpcloud/tail"
	godaemon "github.com/sevlyar/go-daemon"

	"github.com/lucasnoah/sitefactory/internal/log"
)

const stopPoll = 100 * time.Millisecond

// WasReborn reports whether this process is the detached child started by
// Background.
func WasReborn() bool {
	return godaemon.WasReborn()
}

// Background re-executes the current command line as a detached child whose
// output goes to the daemon log. The parent receives the child process; the
// child receives nil and should go on to Serve.
func Background(dir string) (*os.Process, error) {
	if !WasReborn() {
		if pid, alive, err := Probe(filepath.Join(dir, PIDFile)); err != nil {
			return nil, err
		} else if alive {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create daemon directory: %w", err)
	}

	dctx := &godaemon.Context{
		LogFileName: filepath.Join(dir, LogFile),
		LogFilePerm: 0o640,
		WorkDir:     "./",
		Umask:       0o27,
	}
	child, err := dctx.Reborn()
	if err != nil {
		return nil, fmt.Errorf("fork daemon: %w", err)
	}
	return child, nil
}

// StopDaemon sends SIGTERM to the daemon recorded in dir and escalates to
// SIGKILL if it is still alive after grace.
func StopDaemon(dir string, grace time.Duration) error {
	pidFile := filepath.Join(dir, PIDFile)
	pid, alive, err := Probe(pidFile)
	if err != nil {
		return err
	}
	if !alive {
		return ErrNotRunning
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM to %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			break
		}
		time.Sleep(stopPoll)
	}
	if processAlive(pid) {
		log.Warn("daemon %d still running after %s, sending SIGKILL", pid, grace)
		if err := p.Kill(); err != nil {
			return fmt.Errorf("kill %d: %w", pid, err)
		}
	}
	return removePID(pidFile)
}

// RecentLines returns up to n trailing non-empty lines of path.
func RecentLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		lines = append(lines, sc.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, sc.Err()
}

// FollowLog writes the last n lines of path to w and, when follow is set,
// keeps streaming appended lines until ctx is cancelled.
func FollowLog(ctx context.Context, path string, n int, follow bool, w io.Writer) error {
	lines, err := RecentLines(path, n)
	if err != nil && !(follow && errors.Is(err, os.ErrNotExist)) {
		return fmt.Errorf("read log: %w", err)
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	if !follow {
		return nil
	}

	t, err := tail.TailFile(path, tail.Config{
		ReOpen:    true,
		Follow:    true,
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail log: %w", err)
	}
	defer t.Cleanup()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line == nil || strings.TrimSpace(line.Text) == "" {
				continue
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}
