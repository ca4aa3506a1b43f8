/*
Package scheduler provides the clinic front-desk scheduling core: a
recurrence rule engine plus the mutation dispatcher that applies
scope-tagged edits and deletes to recurring appointments, calendar
events and out-of-office blocks.

# Basic Usage

The simplest way to use this package is with the provided in-memory
storage:

	store := memory.New()
	sched, err := scheduler.New(scheduler.Config{Storage: store})
	if err != nil {
		log.Fatal(err)
	}

	rec := &storage.EventRecord{
		Type:  storage.TypeAppointment,
		Start: start,
		End:   start.Add(50 * time.Minute),
	}
	rcfg := &recurrence.Config{
		Interval:   2,
		Period:     recurrence.PeriodWeekly,
		WeeklyDays: []recurrence.Weekday{recurrence.Tuesday, recurrence.Thursday},
		End:        recurrence.Termination{Kind: recurrence.EndAfterCount, Count: 10},
	}
	rec, err = sched.Create(ctx, rec, rcfg)

# Recurrence Descriptors

A recurring record stores a canonical descriptor string, constructed by
recurrence.Construct and parsed back with recurrence.Parse:

	FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;COUNT=10;DTSTART=20250107T100000Z

recurrence.Summarize renders the same grammar as two lines of display
text ("Every 2 weeks on Tuesday, Thursday" / "Ends after 10 events").

# Edit and Delete Scopes

Mutations on a member of a recurring series must carry an explicit
scope, resolved through recurrence.ScopeResolver:

	resolver, _ := recurrence.NewScopeResolver(recurrence.ActionDelete)
	resolver.RequestChoice() // present options to the user
	resolver.Resolve(recurrence.ScopeSeries)
	req, _ := resolver.BuildRequest(occurrenceStart, nil, time.Time{})
	err = sched.Delete(ctx, rec.ID, req)

Without a resolved request the dispatcher refuses the mutation.

# Custom Storage Backend

To implement your own persistence, implement the storage.Storage
interface; storage/postgres ships a pgx-backed implementation and
storage/memory an in-memory one for tests.

See scheduler/example/main.go for a complete wiring example.
*/
package scheduler
