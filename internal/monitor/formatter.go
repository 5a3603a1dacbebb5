package monitor

import (
	"fmt"

	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatInterval formats a credible interval as "[lo, hi]"
func FormatInterval(iv variable.Interval) string {
	return fmt.Sprintf("[%.2f, %.2f]", iv.Lo, iv.Hi)
}

// FormatScore formats a trust score with a signed delta.
func FormatScore(score, delta float64) string {
	if delta == 0 {
		return fmt.Sprintf("%.3f", score)
	}
	return fmt.Sprintf("%.3f (%+.3f)", score, delta)
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", max(seconds, 0))
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
