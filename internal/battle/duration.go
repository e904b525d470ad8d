package battle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pnl-arena/internal/errs"
)

const (
	DefaultMinDuration = 5 * time.Minute
	DefaultMaxDuration = 4 * 7 * 24 * time.Hour
)

// Presets are the quick durations offered during battle setup.
var Presets = []string{"30m", "2h", "1d", "3d", "1w"}

// maxDurationCount keeps n weeks within time.Duration.
const maxDurationCount = 10000

var durationPattern = regexp.MustCompile(`^(\d+)([mhdw])$`)

var durationUnits = map[string]time.Duration{
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// ParseDuration reads "<n><unit>" with unit m, h, d or w, e.g. "45m" or "2 D".
// Bounds are not checked here.
func ParseDuration(text string) (time.Duration, error) {
	cleaned := strings.ToLower(strings.Join(strings.Fields(text), ""))
	match := durationPattern.FindStringSubmatch(cleaned)
	if match == nil {
		return 0, fmt.Errorf("%w: cannot parse duration %q", errs.ErrInvalidConfiguration, text)
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: cannot parse duration %q", errs.ErrInvalidConfiguration, text)
	}
	if n > maxDurationCount {
		return 0, fmt.Errorf("%w: duration %q is out of range", errs.ErrInvalidConfiguration, text)
	}
	return time.Duration(n) * durationUnits[match[2]], nil
}

// FormatDuration renders d with the largest whole unit, e.g. 72h as "3d".
func FormatDuration(d time.Duration) string {
	for _, u := range []string{"w", "d", "h"} {
		if unit := durationUnits[u]; d >= unit && d%unit == 0 {
			return strconv.FormatInt(int64(d/unit), 10) + u
		}
	}
	return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
}
