package util //nolint:revive // package name util hosts shared formatting helpers used by the CLIs

import "time"

// FormatAge formats how long ago something happened, truncated to whole seconds.
// Returns "-" for zero or negative durations (clock skew between hosts).
func FormatAge(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return "<1s"
	default:
		return d.Truncate(time.Second).String()
	}
}
