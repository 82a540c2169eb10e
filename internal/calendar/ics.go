package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// defaultEventDuration is assumed for timed events; the data model stores a
// start time only.
const defaultEventDuration = time.Hour

// BuildICS serializes local events as an iCalendar feed. Recurring events
// carry an RRULE so subscribing clients expand occurrences themselves.
// Remote-origin events are excluded: their authoritative copy already lives
// in the provider's calendar.
func BuildICS(events []Event, calendarName string) (string, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//TaskLeaf//Calendar//EN")
	if calendarName != "" {
		cal.SetXWRCalName(calendarName)
	}

	now := time.Now().UTC()
	for _, ev := range events {
		if ev.Origin == OriginGoogle {
			continue
		}
		vevent := cal.AddEvent(ev.ID)
		vevent.SetDtStampTime(now)
		vevent.SetSummary(ev.Title)
		if ev.Tag != "" {
			vevent.SetProperty(ics.ComponentPropertyCategories, ev.Tag)
		}

		start, allDay := eventStart(ev)
		if allDay {
			vevent.SetAllDayStartAt(start)
			vevent.SetAllDayEndAt(start.AddDate(0, 0, 1))
		} else {
			vevent.SetStartAt(start)
			vevent.SetEndAt(start.Add(defaultEventDuration))
		}

		if ev.Recurrence != RecurrenceNone && ev.Recurrence != "" {
			rule, err := recurrenceRule(ev, start)
			if err != nil {
				return "", fmt.Errorf("event %s: %w", ev.ID, err)
			}
			vevent.AddRrule(rule)
		}
	}

	return cal.Serialize(), nil
}

func eventStart(ev Event) (start time.Time, allDay bool) {
	hour, minute, ok := parseClock(ev.Time)
	if !ok {
		return ev.Date.Time(), true
	}
	return time.Date(ev.Date.Year, ev.Date.Month, ev.Date.Day, hour, minute, 0, 0, time.UTC), false
}

func recurrenceRule(ev Event, dtstart time.Time) (string, error) {
	opt := rrule.ROption{Dtstart: dtstart}
	switch ev.Recurrence {
	case RecurrenceDaily:
		opt.Freq = rrule.DAILY
	case RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
	case RecurrenceMonthly:
		opt.Freq = rrule.MONTHLY
	case RecurrenceYearly:
		opt.Freq = rrule.YEARLY
	default:
		return "", fmt.Errorf("unsupported recurrence %q", ev.Recurrence)
	}
	if ev.RecurrenceEnd != nil {
		// End of the final day, so an occurrence on the end date itself
		// is still included.
		opt.Until = ev.RecurrenceEnd.Time().Add(24*time.Hour - time.Second)
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

func parseClock(hhmm string) (hour, minute int, ok bool) {
	hh, mm, found := strings.Cut(hhmm, ":")
	if !found {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
