//go:build windows

package manager

import "syscall"

const (
	createNewConsole      = 0x00000010
	detachedProcess       = 0x00000008
	createNewProcessGroup = 0x00000200
)

func sysProcAttr(dedicated bool) *syscall.SysProcAttr {
	if dedicated {
		return &syscall.SysProcAttr{CreationFlags: createNewConsole}
	}
	return &syscall.SysProcAttr{CreationFlags: detachedProcess | createNewProcessGroup}
}
