//go:build !linux

package executor

import "errors"

// waitExited is linux only. Elsewhere Wait reaps without the lock and a
// ForceTerminate racing the reap may signal a stale pid.
func waitExited(pid int) error {
	return errors.ErrUnsupported
}
