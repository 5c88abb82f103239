/*
Package events provides an in-memory broker for enrollment lifecycle events.

The enrollment service publishes an event after each committed state change;
nothing is published for an operation that failed or rolled back. Subscribers
receive events on a buffered channel, either every event or only the types
passed to Subscribe.

# Event types

	enrollment.created              enroll committed
	enrollment.cancelled            unenroll committed
	enrollment.completed            progress reached 1.0 for the first time
	enrollment.certificate_issued   certificate flag set
	counters.repaired               reconciliation rewrote a counter or index

Metadata carries user_id, course_id and, where one exists, enrollment_id.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for event := range sub {
		fmt.Println(event.Type, event.Metadata[events.MetaCourseID])
	}

# Delivery

Publish queues into a 100-event channel drained by a single goroutine, which
fans out to subscriber channels holding 50 events each. A subscriber whose
buffer is full misses the event rather than stalling the broker, so events
are a notification stream, not a durable log. Dropped counts the misses.
*/
package events
