//go:build linux

package executor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// waitExited blocks until pid has exited but leaves it unreaped, so the pid
// cannot be reused until the caller waits for it.
func waitExited(pid int) error {
	for {
		var info unix.Siginfo
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
