//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package sysmem

import "golang.org/x/sys/unix"

// sysctlNames are tried in order; the first non-zero answer wins.
var sysctlNames = []string{"hw.memsize", "hw.physmem", "hw.realmem"}

func totalSystemMemory() (uint64, bool) {
	for _, name := range sysctlNames {
		if mem, err := unix.SysctlUint64(name); err == nil && mem > 0 {
			return mem, true
		}
	}
	return 0, false
}
