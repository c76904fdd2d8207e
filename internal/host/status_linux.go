package host

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Load averages from sysinfo(2) are fixed-point with 16 fractional bits.
const loadScale = 1 << 16

func collect(diskPath string) (Status, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Status{}, fmt.Errorf("sysinfo: %w", err)
	}

	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(si.Totalram) * unit
	free := (uint64(si.Freeram) + uint64(si.Bufferram)) * unit

	st := Status{
		Uptime:     time.Duration(si.Uptime) * time.Second,
		MemTotalMB: total / 1024 / 1024,
		MemUsedMB:  (total - free) / 1024 / 1024,
		Processes:  int(si.Procs),
	}
	for i := range st.Load {
		st.Load[i] = float64(si.Loads[i]) / loadScale
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(diskPath, &fs); err != nil {
		return st, fmt.Errorf("statfs %s: %w", diskPath, err)
	}
	bsize := uint64(fs.Bsize)
	diskTotal := fs.Blocks * bsize
	diskAvail := fs.Bavail * bsize
	st.DiskTotalGB = diskTotal / 1024 / 1024 / 1024
	st.DiskUsedGB = (diskTotal - diskAvail) / 1024 / 1024 / 1024
	return st, nil
}
