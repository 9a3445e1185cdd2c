package dicom

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateTimeLayout is the full DICOM DT layout, YYYYMMDDHHMMSS.FFFFFF
const dateTimeLayout = "20060102150405.000000"

// TimeToDateTime formats t as a full DICOM DT value in UTC
func TimeToDateTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(dateTimeLayout)
}

// TimestampToDateTime formats a millisecond timestamp as a DICOM DT value
func TimestampToDateTime(ms int64) string {
	return TimeToDateTime(time.UnixMilli(ms))
}

// DateTimeToTime parses a DICOM DT value. Trailing components may be
// omitted ("2023", "20221026150703"); a missing month or day defaults to 1,
// missing time components to 0, and a fraction shorter than six digits is
// padded with zeros. A UTC offset suffix ("+0100") is honored.
func DateTimeToTime(dt string) (time.Time, error) {
	value, loc, err := splitOffset(strings.TrimSpace(dt))
	if err != nil {
		return time.Time{}, err
	}
	if len(value) < 4 {
		return time.Time{}, fmt.Errorf("invalid date time %q: missing year", dt)
	}

	fields := []struct {
		start, end int
		def        int
	}{
		{0, 4, 0},   // year
		{4, 6, 1},   // month
		{6, 8, 1},   // day
		{8, 10, 0},  // hour
		{10, 12, 0}, // minute
		{12, 14, 0}, // second
	}
	parts := make([]int, len(fields))
	for i, f := range fields {
		if len(value) < f.end {
			parts[i] = f.def
			continue
		}
		n, err := strconv.Atoi(value[f.start:f.end])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date time %q: %w", dt, err)
		}
		parts[i] = n
	}

	var micros int
	if len(value) > 15 {
		if value[14] != '.' {
			return time.Time{}, fmt.Errorf("invalid date time %q: expected '.' before fraction", dt)
		}
		frac := value[15:]
		if len(frac) > 6 {
			return time.Time{}, fmt.Errorf("invalid date time %q: fraction longer than 6 digits", dt)
		}
		frac += strings.Repeat("0", 6-len(frac))
		if micros, err = strconv.Atoi(frac); err != nil {
			return time.Time{}, fmt.Errorf("invalid date time %q: %w", dt, err)
		}
	}

	return time.Date(parts[0], time.Month(parts[1]), parts[2],
		parts[3], parts[4], parts[5], micros*int(time.Microsecond), loc), nil
}

// DateTimeToTimestamp parses a DICOM DT value into a millisecond timestamp
func DateTimeToTimestamp(dt string) (int64, error) {
	t, err := DateTimeToTime(dt)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func splitOffset(dt string) (string, *time.Location, error) {
	idx := strings.LastIndexAny(dt, "+-")
	if idx < 4 {
		return dt, time.UTC, nil
	}
	offset := dt[idx+1:]
	if len(offset) != 4 {
		return "", nil, fmt.Errorf("invalid date time %q: malformed UTC offset", dt)
	}
	hh, err := strconv.Atoi(offset[:2])
	if err != nil {
		return "", nil, fmt.Errorf("invalid date time %q: %w", dt, err)
	}
	mm, err := strconv.Atoi(offset[2:])
	if err != nil {
		return "", nil, fmt.Errorf("invalid date time %q: %w", dt, err)
	}
	seconds := hh*3600 + mm*60
	if dt[idx] == '-' {
		seconds = -seconds
	}
	return dt[:idx], time.FixedZone(dt[idx:], seconds), nil
}
