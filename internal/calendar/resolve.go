package calendar

// Resolver holds the state a resolution pass reads: locally-owned events,
// the cached remote snapshot, and the read-only task list. It is plain data
// passed in by the caller, so resolution is testable without any storage or
// HTTP machinery behind it.
type Resolver struct {
	Local  []Event
	Remote []Event
	Tasks  []TaskItem
}

// ResolveOptions carries per-call visibility toggles.
type ResolveOptions struct {
	ShowRemote bool
}

// EventsForDate merges, in this fixed order:
//
//  1. local events anchored exactly on d that are not mirrored remotely
//     (mirrored ones would double up against their remote projection),
//  2. recurring instances of local, unmirrored events whose anchor is a
//     different date,
//  3. remote events on d, when ShowRemote is set.
//
// No time-of-day sorting happens here; hour layout belongs to the projector.
// Absent inputs yield an empty slice, never a panic.
func (r Resolver) EventsForDate(d Date, opts ResolveOptions) []Item {
	items := make([]Item, 0, 4)

	for _, ev := range r.Local {
		if ev.RemoteID != "" || ev.Origin == OriginGoogle {
			continue
		}
		if ev.Date.Equal(d) {
			items = append(items, eventItem(ev, ev.ID, false))
		}
	}

	for _, ev := range r.Local {
		if ev.RemoteID != "" || ev.Origin == OriginGoogle {
			continue
		}
		if ev.Recurrence == RecurrenceNone || ev.Recurrence == "" {
			continue
		}
		if ev.Date.Equal(d) {
			continue // already emitted as a direct match
		}
		if OccursOn(ev, d) {
			items = append(items, eventItem(ev, InstanceID(ev.ID, d), true))
		}
	}

	if opts.ShowRemote {
		for _, ev := range r.Remote {
			if ev.Date.Equal(d) {
				items = append(items, eventItem(ev, ev.ID, false))
			}
		}
	}

	return items
}

// TasksForDate returns the task items due on d, as view-ready Items.
func (r Resolver) TasksForDate(d Date) []Item {
	items := make([]Item, 0, 2)
	for _, t := range r.Tasks {
		if t.Date.Equal(d) {
			items = append(items, Item{
				ID:        t.ID,
				Kind:      KindTask,
				Title:     t.Title,
				Time:      t.Time,
				Priority:  t.Priority,
				Completed: t.Completed,
			})
		}
	}
	return items
}

// ItemsForDate is the merged per-day list all views share: resolved events
// followed by the date's tasks.
func (r Resolver) ItemsForDate(d Date, opts ResolveOptions) []Item {
	items := r.EventsForDate(d, opts)
	return append(items, r.TasksForDate(d)...)
}

func eventItem(ev Event, id string, recurring bool) Item {
	item := Item{
		ID:     id,
		Kind:   KindEvent,
		Title:  ev.Title,
		Time:   ev.Time,
		Tag:    ev.Tag,
		Color:  ev.Color,
		Origin: ev.Origin,
	}
	if item.Origin == "" {
		item.Origin = OriginLocal
	}
	if recurring {
		item.Recurring = true
		item.BaseID = ev.ID
	}
	return item
}
