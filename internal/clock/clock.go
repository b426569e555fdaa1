package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock is the time source used by the evaluator and the scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type SystemClock struct{}

func New() Clock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
