// Package cancel provides the cooperative stop token shared by pipeline
// stages. Workers poll the token at unit boundaries (per frame, per scene,
// per batch item) and finish the current unit before returning, so a stop
// never leaves a half-written unit behind.
package cancel

import "sync/atomic"

// Token is a one-way stop flag. The zero value is ready to use.
// Stop may be called from any goroutine; there is no way to un-stop.
type Token struct {
	stopped atomic.Bool
}

// Stop requests cooperative termination.
func (t *Token) Stop() {
	if t != nil {
		t.stopped.Store(true)
	}
}

// Stopped reports whether a stop has been requested. A nil token never stops.
func (t *Token) Stopped() bool {
	return t != nil && t.stopped.Load()
}
