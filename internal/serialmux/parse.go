package serialmux

import "strings"

const (
	LinePlatformState = "platform_state"
	LineStatus        = "status"
	LineComment       = "comment"
	LineUnknown       = "unknown"
)

// ClassifyLine sorts a telemetry line. Platform readings are "(height,
// heading)" tuples or JSON carrying height_m; other JSON objects are status
// reports and lines starting with '#' are bridge comments.
func ClassifyLine(line string) string {
	l := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(l, "#"):
		return LineComment
	case strings.HasPrefix(l, "(") && strings.HasSuffix(l, ")"):
		return LinePlatformState
	case strings.HasPrefix(l, "{") && strings.Contains(l, `"height_m"`):
		return LinePlatformState
	case strings.HasPrefix(l, "{"):
		return LineStatus
	default:
		return LineUnknown
	}
}
