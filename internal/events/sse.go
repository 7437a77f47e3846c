package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// SubscribeToChannel forwards events of type T to ch without blocking the
// publisher. Events that find ch full are dropped and counted in dropped,
// which may be nil.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any, dropped *atomic.Uint64) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			if dropped != nil {
				dropped.Add(1)
			}
		}
	})
}
