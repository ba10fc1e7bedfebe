package tank

import "github.com/jkaberg/dura-gas/internal/engine"

// Observer is notified about evaluations and mutations, e.g. for metrics.
type Observer interface {
	Evaluated(res *engine.Result)
	Mutated(service string, err error)
}

// NoopObserver discards all notifications.
type NoopObserver struct{}

func (NoopObserver) Evaluated(*engine.Result) {}
func (NoopObserver) Mutated(string, error)    {}
