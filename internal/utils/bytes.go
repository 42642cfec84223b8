package utils

import (
	"fmt"
	"strings"
)

// FormatSize converts a byte count to a human-readable string.
// The update XML reports zero for packages whose size is not published,
// so zero maps to "Unknown" rather than "0.00 B".
func FormatSize(n int64) string {
	if n <= 0 {
		return "Unknown"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	val := float64(n)
	i := 0

	for val >= 1024 && i < len(units)-1 {
		val /= 1024
		i++
	}

	return fmt.Sprintf("%.2f %s", val, units[i])
}

// FormatSpeed renders a bytes-per-second rate.
func FormatSpeed(bps int64) string {
	if bps <= 0 {
		return "0 B/s"
	}

	return FormatSize(bps) + "/s"
}

// SubfolderName builds the "Game Title (TITLEID)" directory name used to
// group downloaded packages, replacing characters that are invalid in
// file names on common filesystems.
func SubfolderName(gameTitle, titleID string) string {
	name := strings.TrimSpace(gameTitle)
	if name == "" {
		name = "Unknown Title"
	}
	if titleID != "" {
		name = fmt.Sprintf("%s (%s)", name, titleID)
	}

	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, name)
}
