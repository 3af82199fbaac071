// Package lock implements the process-wide advisory lock (C10): a single
// POSIX fcntl byte-range write lock on a well-known file, so at most one
// oma-family process mutates system package state at a time. Grounded on
// the source project's get_file_lock (itself quoting apt's own
// libapt-pkg/fileutil.cc locking dance).
package lock

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/aosc-dev/omacore/omaerr"
)

// AlreadyHeld is returned by Acquire when another process already holds
// the lock, carrying enough identity to tell the user who to blame.
type AlreadyHeld struct {
	Pid         int32
	ProcessName string
}

func (e *AlreadyHeld) Error() string {
	return fmt.Sprintf("set lock failed: process %s (%d) is using", e.ProcessName, e.Pid)
}

// Lock is a held advisory lock. Release unlocks and closes the
// underlying file descriptor; a process exiting (cleanly or not) also
// releases it, since fcntl locks do not survive their owning process.
type Lock struct {
	fd   int
	path string
}

// Acquire opens (creating if necessary) the file at path and takes an
// exclusive, non-blocking fcntl write lock on it. On conflict, it
// resolves the conflicting lock's holder via F_GETLK and /proc/<pid>/comm
// and returns *AlreadyHeld.
func Acquire(path string) (*Lock, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_NOFOLLOW, 0o640)
	if err != nil {
		return nil, omaerr.Wrap(omaerr.LockHeld, "failed to open lock file "+path, err)
	}

	unix.CloseOnExec(fd)

	fl := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(unix.SEEK_SET),
		Start:  0,
		Len:    0,
		Pid:    -1,
	}

	if err := unix.FcntlFlock(uintptr(fd), unix.F_SETLK, &fl); err != nil {
		getlk := unix.Flock_t{
			Type:   unix.F_WRLCK,
			Whence: int16(unix.SEEK_SET),
			Start:  0,
			Len:    0,
			Pid:    -1,
		}
		if err == unix.EACCES || err == unix.EAGAIN {
			_ = unix.FcntlFlock(uintptr(fd), unix.F_GETLK, &getlk)
		} else {
			getlk.Pid = -1
		}
		unix.Close(fd)

		if getlk.Pid != -1 {
			return nil, &AlreadyHeld{Pid: getlk.Pid, ProcessName: processName(getlk.Pid)}
		}
		return nil, omaerr.Wrap(omaerr.LockHeld, "failed to acquire lock on "+path, err)
	}

	return &Lock{fd: fd, path: path}, nil
}

// Release drops the lock and closes its file descriptor. Safe to call
// once; the Lock must not be used afterwards.
func (l *Lock) Release() error {
	return unix.Close(l.fd)
}

// processName resolves a pid to its command name via /proc, matching the
// source project's sysinfo::System process-name lookup, falling back to
// "unknown" when /proc is unavailable or the process has already exited.
func processName(pid int32) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(data))
}
