package calendar

// OccursOn reports whether an occurrence of a recurring event falls on the
// target date. It is pure: identical inputs give identical answers regardless
// of call order.
//
// Events with Recurrence == none never match here; direct date matches are
// the resolver's job. Monthly rules match on equal day-of-month, so an anchor
// on day 29-31 simply skips months too short to contain that day.
func OccursOn(ev Event, target Date) bool {
	if ev.Recurrence == RecurrenceNone || ev.Recurrence == "" {
		return false
	}
	if target.Before(ev.Date) {
		return false
	}
	if ev.RecurrenceEnd != nil && target.After(*ev.RecurrenceEnd) {
		return false
	}

	switch ev.Recurrence {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		return DaysBetween(ev.Date, target)%7 == 0
	case RecurrenceMonthly:
		return target.Day == ev.Date.Day
	case RecurrenceYearly:
		return target.Day == ev.Date.Day && target.Month == ev.Date.Month
	default:
		return false
	}
}

// InstanceID derives the identity of one concrete occurrence from its base
// event and date.
func InstanceID(baseID string, d Date) string {
	return baseID + "@" + d.String()
}
