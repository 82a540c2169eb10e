package calendar

// Origin says whose record is authoritative for an event. Remote-origin
// events are locally read-only; only deletion is allowed, and it is forwarded
// to the provider. Origin is an explicit field rather than something inferred
// from the shape of the id.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginGoogle Origin = "google"
)

// Recurrence enumerates the supported repeat rules.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// ValidRecurrence reports whether s names a known recurrence rule.
func ValidRecurrence(s Recurrence) bool {
	switch s {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	default:
		return false
	}
}

// Event is a calendar event as seen by the resolver. For recurring events
// Date is the anchor (first possible occurrence). Time is "HH:MM"; empty
// means all-day. RemoteID is set only for locally-owned events mirrored to
// the provider; remote-origin events carry the provider id in RemoteID too,
// with Origin distinguishing the two cases.
type Event struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Date          Date       `json:"date"`
	Time          string     `json:"time,omitempty"`
	Tag           string     `json:"tag,omitempty"`
	Color         string     `json:"color,omitempty"`
	Origin        Origin     `json:"origin"`
	RemoteID      string     `json:"remote_id,omitempty"`
	Recurrence    Recurrence `json:"recurrence"`
	RecurrenceEnd *Date      `json:"recurrence_end,omitempty"`
}

// TaskItem is the read-only projection of a task that calendar views merge
// in alongside events. The calendar core never mutates tasks.
type TaskItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Date      Date   `json:"date"`
	Time      string `json:"time,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Completed bool   `json:"completed"`
}

// ItemKind distinguishes events from merged-in tasks in view output.
type ItemKind string

const (
	KindEvent ItemKind = "event"
	KindTask  ItemKind = "task"
)

// Item is a single resolved entry for one calendar date. Recurring events
// produce synthetic Items whose ID combines the base event id with the
// target date, so one base event can appear on many dates without id
// collisions; BaseID keeps the original id recoverable.
type Item struct {
	ID        string   `json:"id"`
	Kind      ItemKind `json:"kind"`
	Title     string   `json:"title"`
	Time      string   `json:"time,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Color     string   `json:"color,omitempty"`
	Origin    Origin   `json:"origin,omitempty"`
	Recurring bool     `json:"recurring,omitempty"`
	BaseID    string   `json:"base_id,omitempty"`
	Priority  string   `json:"priority,omitempty"`
	Completed bool     `json:"completed,omitempty"`
}
