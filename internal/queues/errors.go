package queues

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("queue not found")
	ErrActiveQueueExists = errors.New("an active queue already exists for this session")
)

// IllegalTransitionError reports a rejected queue status move.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal queue transition %s -> %s", e.From, e.To)
}
