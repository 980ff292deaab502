package utils

import (
	"fmt"
	"math"
)

// FormatMilliCPU renders a CPU amount in millicores, the unit kubectl top uses
func FormatMilliCPU(milliCores int64) string {
	return fmt.Sprintf("%dm", milliCores)
}

// FormatBytesToHumanReadable formats bytes with binary suffixes (Ki, Mi, Gi)
func FormatBytesToHumanReadable(bytes int64) string {
	const (
		KiB int64 = 1024
		MiB       = KiB * 1024
		GiB       = MiB * 1024
	)

	switch {
	case bytes >= GiB:
		return fmt.Sprintf("%.2fGi", float64(bytes)/float64(GiB))
	case bytes >= MiB:
		return fmt.Sprintf("%.0fMi", float64(bytes)/float64(MiB))
	case bytes >= KiB:
		return fmt.Sprintf("%.0fKi", float64(bytes)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// UsagePercentage returns used/total as a percentage rounded to one decimal,
// or nil when total is not positive
func UsagePercentage(used, total int64) *float64 {
	if total <= 0 {
		return nil
	}
	pct := math.Round(float64(used)/float64(total)*1000) / 10
	return &pct
}
