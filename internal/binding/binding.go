// Package binding exposes view-facing state holders over the chat
// service. Each binding caches a snapshot behind a mutex and signals a
// one-slot refresh channel when the snapshot changes; view layers
// range over the channel and re-read.
package binding

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
