package digest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/courierhq/courier/pkg/models"
)

var weekdayNumbers = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

// Duration converts an amount and unit pair into a duration.
func Duration(amount int, unit models.DigestUnit) (time.Duration, error) {
	switch unit {
	case models.UnitSeconds:
		return time.Duration(amount) * time.Second, nil
	case models.UnitMinutes:
		return time.Duration(amount) * time.Minute, nil
	case models.UnitHours:
		return time.Duration(amount) * time.Hour, nil
	case models.UnitDays:
		return time.Duration(amount) * 24 * time.Hour, nil
	case models.UnitWeeks:
		return time.Duration(amount) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported digest unit: %s", unit)
	}
}

// WindowEnd computes when a window opened at now closes. Regular and backoff
// windows close a fixed duration after opening; timed windows close at the
// next calendar boundary of their schedule.
func WindowEnd(now time.Time, meta *models.DigestMetadata) (time.Time, error) {
	if meta == nil {
		return time.Time{}, errors.New("digest metadata is required")
	}

	if meta.Type == models.DigestTimed {
		return nextTimedBoundary(now, meta.Timed)
	}

	length, err := Duration(meta.Amount, meta.Unit)
	if err != nil {
		return time.Time{}, err
	}

	if length <= 0 {
		return time.Time{}, fmt.Errorf("digest window length must be positive, got %s", length)
	}

	return now.Add(length), nil
}

// nextTimedBoundary resolves the timed config to a cron schedule and returns
// its next activation after now.
func nextTimedBoundary(now time.Time, timed *models.TimedConfig) (time.Time, error) {
	if timed == nil {
		return time.Time{}, errors.New("timed digest requires a timed config")
	}

	expr := timed.Cron
	if expr == "" {
		var err error

		expr, err = cronFromFields(timed)
		if err != nil {
			return time.Time{}, err
		}
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timed digest schedule %q: %w", expr, err)
	}

	return schedule.Next(now), nil
}

// cronFromFields builds a standard cron expression from the at-time and
// day fields. Week days and month days are mutually exclusive dimensions;
// when both are empty the digest fires daily.
func cronFromFields(timed *models.TimedConfig) (string, error) {
	hour, minute, err := parseAtTime(timed.AtTime)
	if err != nil {
		return "", err
	}

	dayOfMonth := "*"
	if len(timed.MonthDays) > 0 {
		days := make([]string, 0, len(timed.MonthDays))
		for _, day := range timed.MonthDays {
			if day < 1 || day > 31 {
				return "", fmt.Errorf("month day out of range: %d", day)
			}

			days = append(days, strconv.Itoa(day))
		}

		dayOfMonth = strings.Join(days, ",")
	}

	dayOfWeek := "*"
	if len(timed.WeekDays) > 0 {
		days := make([]string, 0, len(timed.WeekDays))
		for _, name := range timed.WeekDays {
			number, ok := weekdayNumbers[strings.ToLower(name)]
			if !ok {
				return "", fmt.Errorf("unknown week day: %s", name)
			}

			days = append(days, strconv.Itoa(number))
		}

		dayOfWeek = strings.Join(days, ",")
	}

	return fmt.Sprintf("%d %d %s * %s", minute, hour, dayOfMonth, dayOfWeek), nil
}

func parseAtTime(atTime string) (int, int, error) {
	if atTime == "" {
		return 0, 0, nil
	}

	parts := strings.Split(atTime, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("at_time must be HH:MM, got %q", atTime)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in at_time %q", atTime)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in at_time %q", atTime)
	}

	return hour, minute, nil
}
