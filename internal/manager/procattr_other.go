//go:build !windows

package manager

import "syscall"

// sysProcAttr puts the server in its own process group so signals sent to
// the manager do not reach it.
func sysProcAttr(dedicated bool) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
