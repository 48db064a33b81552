package conditions

import (
	"context"
	"strings"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
)

// TypeDayTime checks the wall clock.
const TypeDayTime = "dayTime"

const dayMillis = 24 * 60 * 60 * 1000

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// DayTime is true on the listed days between startTime and endTime,
// both milliseconds since midnight. A window with endTime < startTime
// wraps past midnight and belongs to the day it starts on.
type DayTime struct {
	automation.BaseCondition
	days       [7]bool
	start, end int
	loc        *time.Location
	now        func() time.Time
}

func newDayTime(spec automation.ConditionSpec, deps Deps) (automation.Condition, error) {
	c := &DayTime{loc: deps.Location, now: deps.Now}
	c.Init(spec)

	days, err := ParseWeekdays(spec.Params, "days")
	if err != nil {
		return nil, err
	}
	c.days = days
	if c.start, err = params.IntOr(spec.Params, "startTime", "startTime", 0, dayMillis, 0); err != nil {
		return nil, err
	}
	if c.end, err = params.IntOr(spec.Params, "endTime", "endTime", 0, dayMillis, dayMillis); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseWeekdays reads a list of weekdays given as numbers (0 = Sunday) or
// three-letter names. An absent list means every day.
func ParseWeekdays(p params.Map, key string) ([7]bool, error) {
	var out [7]bool
	names := params.Strings(p, key)
	if len(names) == 0 {
		for i := range out {
			out[i] = true
		}
		return out, nil
	}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if d, ok := weekdayNames[n[:min(3, len(n))]]; ok && len(n) >= 3 {
			out[d] = true
			continue
		}
		if len(n) == 1 && n[0] >= '0' && n[0] <= '6' {
			out[n[0]-'0'] = true
			continue
		}
		return out, automation.NewValidationError("%s: %q is not a weekday", key, n)
	}
	return out, nil
}

// Evaluate compares the current time against the window.
func (c *DayTime) Evaluate(ctx context.Context, req automation.EvaluateRequest) (bool, error) {
	return c.Guard(ctx, func(context.Context) (bool, error) {
		now := c.now().In(c.loc)
		ms := now.Hour()*3600000 + now.Minute()*60000 + now.Second()*1000 + now.Nanosecond()/1e6
		day := now.Weekday()

		var ok bool
		switch {
		case c.start <= c.end:
			ok = c.days[day] && ms >= c.start && ms < c.end
		case ms >= c.start:
			ok = c.days[day]
		default:
			// Early-morning tail of a window that began yesterday.
			ok = c.days[(day+6)%7] && ms < c.end
		}
		req.Log.Debug("day/time checked", "weekday", day.String(), "ms", ms, "start", c.start, "end", c.end, "met", ok)
		return ok, nil
	})
}
