package batch

import "sync"

// StopToken is a cooperative stop request shared between the caller and a
// running batch.
type StopToken struct {
	once sync.Once
	done chan struct{}
}

func NewStopToken() *StopToken {
	return &StopToken{done: make(chan struct{})}
}

// Stop is safe to call more than once and from any goroutine.
func (t *StopToken) Stop() {
	t.once.Do(func() { close(t.done) })
}

func (t *StopToken) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *StopToken) Done() <-chan struct{} {
	return t.done
}
