package invoice

import (
	"context"
	"time"
)

// Observer is notified after a transition commits and when an operation is rejected.
// Implementations must not block; the service calls them inline.
type Observer interface {
	Committed(ctx context.Context, inv *Invoice, ev Event)
	Rejected(op Operation, err error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
