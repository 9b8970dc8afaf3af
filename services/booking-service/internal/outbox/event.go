package outbox

import "time"

// Event is the domain event envelope appended to the outbox in the same transaction as the
// state change it describes. The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is a stored, claimable event.
type Record struct {
	ID          int64
	EventID     string
	Event       Event
	Traceparent string
	Tracestate  string
	Attempts    int
	CreatedAt   time.Time
}

// Failure reschedules a record. Dead records are never claimed again.
type Failure struct {
	Attempts    int
	NextAttempt time.Time
	LastError   string
	Dead        bool
}
