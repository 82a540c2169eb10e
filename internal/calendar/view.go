package calendar

import (
	"strconv"
	"strings"
	"time"
)

const (
	// monthCellLimit is how many items a month cell shows before collapsing
	// the remainder into an overflow count.
	monthCellLimit = 2

	hoursPerDay = 24
	daysPerWeek = 7

	// untimedDisplayHour is where items with no time of day land unless the
	// projector configures another hour.
	untimedDisplayHour = 9
)

// Projector adapts per-day resolution into day/week/month layouts. The three
// projections agree on the item set for any given date; only the spatial
// arrangement differs.
type Projector struct {
	Resolver Resolver
	Options  ResolveOptions

	// DefaultDisplayHour overrides the hour-row used for items with no time
	// of day. Nil means hour 9; zero is valid and means midnight.
	DefaultDisplayHour *int

	// WeekStart picks the first column of week and month layouts.
	WeekStart time.Weekday
}

// MonthCell is one cell of the month grid. Blank padding cells have a zero
// Date and no items.
type MonthCell struct {
	Date     Date   `json:"date,omitempty"`
	Day      int    `json:"day,omitempty"`
	Items    []Item `json:"items,omitempty"`
	Overflow int    `json:"overflow,omitempty"`
}

func (c MonthCell) Blank() bool { return c.Day == 0 }

// MonthView is the month grid: full week rows, the last one padded with
// blanks only far enough to complete the row.
type MonthView struct {
	Year  int           `json:"year"`
	Month time.Month    `json:"month"`
	Weeks [][]MonthCell `json:"weeks"`
}

// HourRow is one hour of a day or week layout.
type HourRow struct {
	Hour  int    `json:"hour"`
	Items []Item `json:"items"`
}

// DayView lays one date out over 24 hour rows.
type DayView struct {
	Date  Date      `json:"date"`
	Hours []HourRow `json:"hours"`
}

// WeekView is seven day columns sharing the hour axis.
type WeekView struct {
	Start Date      `json:"start"`
	Days  []DayView `json:"days"`
}

// ProjectMonth builds the grid for the month containing anchor. Each dated
// cell holds the date's merged items truncated to a small display count with
// an overflow counter for the rest.
func (p Projector) ProjectMonth(anchor Date) MonthView {
	first := Date{Year: anchor.Year, Month: anchor.Month, Day: 1}
	total := DaysInMonth(anchor)

	leading := (int(first.Weekday()) - int(p.WeekStart) + daysPerWeek) % daysPerWeek
	cells := make([]MonthCell, 0, leading+total+daysPerWeek)
	for i := 0; i < leading; i++ {
		cells = append(cells, MonthCell{})
	}

	for day := 1; day <= total; day++ {
		d := Date{Year: anchor.Year, Month: anchor.Month, Day: day}
		items := p.Resolver.ItemsForDate(d, p.Options)
		cell := MonthCell{Date: d, Day: day, Items: items}
		if len(items) > monthCellLimit {
			cell.Items = items[:monthCellLimit]
			cell.Overflow = len(items) - monthCellLimit
		}
		cells = append(cells, cell)
	}

	// Pad only to complete the final week row.
	for len(cells)%daysPerWeek != 0 {
		cells = append(cells, MonthCell{})
	}

	weeks := make([][]MonthCell, 0, len(cells)/daysPerWeek)
	for i := 0; i < len(cells); i += daysPerWeek {
		weeks = append(weeks, cells[i:i+daysPerWeek])
	}
	return MonthView{Year: anchor.Year, Month: anchor.Month, Weeks: weeks}
}

// ProjectWeek lays out the week containing anchor, starting at WeekStart.
func (p Projector) ProjectWeek(anchor Date) WeekView {
	start := StartOfWeek(anchor, p.WeekStart)
	view := WeekView{Start: start, Days: make([]DayView, 0, daysPerWeek)}
	for i := 0; i < daysPerWeek; i++ {
		view.Days = append(view.Days, p.ProjectDay(start.AddDays(i)))
	}
	return view
}

// ProjectDay buckets one date's items into 24 hour rows.
func (p Projector) ProjectDay(anchor Date) DayView {
	rows := make([]HourRow, hoursPerDay)
	for h := range rows {
		rows[h].Hour = h
	}
	for _, item := range p.Resolver.ItemsForDate(anchor, p.Options) {
		h := p.displayHour(item.Time)
		rows[h].Items = append(rows[h].Items, item)
	}
	return DayView{Date: anchor, Hours: rows}
}

func (p Projector) displayHour(hhmm string) int {
	fallback := untimedDisplayHour
	if p.DefaultDisplayHour != nil && *p.DefaultDisplayHour >= 0 && *p.DefaultDisplayHour < hoursPerDay {
		fallback = *p.DefaultDisplayHour
	}
	hh, _, ok := strings.Cut(hhmm, ":")
	if !ok {
		return fallback
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h >= hoursPerDay {
		return fallback
	}
	return h
}
