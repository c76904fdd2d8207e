package host

import (
	"fmt"
	"time"
)

// Status is a point-in-time snapshot of the machine running the bot.
type Status struct {
	Uptime      time.Duration
	Load        [3]float64
	MemUsedMB   uint64
	MemTotalMB  uint64
	DiskUsedGB  uint64
	DiskTotalGB uint64
	Processes   int
}

// Collect reads the current status. diskPath selects the filesystem to report.
func Collect(diskPath string) (Status, error) {
	return collect(diskPath)
}

// String renders the status as a chat reply.
func (s Status) String() string {
	days := int(s.Uptime.Hours()) / 24
	hours := int(s.Uptime.Hours()) % 24
	minutes := int(s.Uptime.Minutes()) % 60
	return fmt.Sprintf("Server Status\n"+
		"Uptime: %dd %dh %dm\n"+
		"Load: %.2f %.2f %.2f\n"+
		"Memory: %dMB / %dMB\n"+
		"Disk: %dGB / %dGB\n"+
		"Processes: %d",
		days, hours, minutes,
		s.Load[0], s.Load[1], s.Load[2],
		s.MemUsedMB, s.MemTotalMB,
		s.DiskUsedGB, s.DiskTotalGB,
		s.Processes)
}

// Map is the tool-facing form of the status.
func (s Status) Map() map[string]any {
	return map[string]any{
		"uptime_seconds":  int64(s.Uptime.Seconds()),
		"load":            []float64{s.Load[0], s.Load[1], s.Load[2]},
		"memory_used_mb":  s.MemUsedMB,
		"memory_total_mb": s.MemTotalMB,
		"disk_used_gb":    s.DiskUsedGB,
		"disk_total_gb":   s.DiskTotalGB,
		"processes":       s.Processes,
	}
}
