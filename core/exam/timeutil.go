package exam

import "fmt"

const (
	lowTimeThreshold      = 5 * 60
	criticalTimeThreshold = 60
)

// FormatTime renders a countdown as M:SS.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatDuration renders a duration like "1h 30m", "45m" or "30s".
func FormatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func MinutesToSeconds(minutes int) int { return minutes * 60 }

func IsTimeRunningLow(seconds int) bool { return seconds < lowTimeThreshold }

func IsTimeCritical(seconds int) bool { return seconds < criticalTimeThreshold }
