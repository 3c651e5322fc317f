// Package pid guards against two poller instances sharing one serial bus.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/energymon/internal/errors"
)

const filePerm = 0o600

// Write records the current process ID at path. It fails with
// ErrAlreadyRunning when the file names a live process; a stale file is
// replaced.
func Write(path string) error {
	errFactory := errors.New()

	if running, err := isRunning(path); err != nil {
		return err
	} else if running {
		return errFactory.WithData(errors.ErrAlreadyRunning, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), filePerm); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	return nil
}

func isRunning(path string) (bool, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// Unreadable content is treated as stale.
		return false, nil
	}
	if pid == os.Getpid() {
		return false, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	return process.Signal(syscall.Signal(0)) == nil, nil
}

// Remove deletes the PID file if it exists.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
