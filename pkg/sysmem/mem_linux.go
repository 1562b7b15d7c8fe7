//go:build linux

package sysmem

import (
	"os"

	"golang.org/x/sys/unix"
)

// cgroupLimitFiles hold a container memory limit under cgroup v2 and v1.
var cgroupLimitFiles = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// totalSystemMemory returns physical RAM, lowered to the cgroup limit when
// the process runs in a memory-limited container.
func totalSystemMemory() (uint64, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	total := uint64(info.Totalram) * uint64(info.Unit)

	for _, path := range cgroupLimitFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if limit, ok := parseCgroupLimit(data); ok && limit < total {
			total = limit
		}
		break
	}
	return total, true
}
