package worker

import "sync"

// Extendable tracks asynchronous work registered by an event handler,
// modeling the platform's "keep me alive until this resolves" primitive.
// The Run loop waits for all registered work before completing the event,
// so the worker is never torn down mid-operation.
type Extendable struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// newExtendable creates an empty tracker.
func newExtendable() *Extendable {
	return &Extendable{}
}

// WaitUntil registers work to be completed before the event finishes.
// The function runs in its own goroutine; its error, if any, is collected
// for the Run loop to log.
func (e *Extendable) WaitUntil(fn func() error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := fn(); err != nil {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
		}
	}()
}

// Wait blocks until all registered work has finished and returns the
// collected errors. Order of errors is not significant.
func (e *Extendable) Wait() []error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs
}
