package fastview

import (
	"time"

	channerics "github.com/niceyeti/channerics/channels"
)

// FanIn merges the ele-update channels of views and any extra sources into a
// single batched channel.
func FanIn(
	done <-chan struct{},
	rate time.Duration,
	views []ViewComponent,
	extra ...<-chan []EleUpdate,
) <-chan []EleUpdate {
	inputs := make([]<-chan []EleUpdate, 0, len(views)+len(extra))
	for _, view := range views {
		inputs = append(inputs, view.Updates())
	}
	inputs = append(inputs, extra...)
	return Batch(done, channerics.Merge(done, inputs...), rate)
}

// Batch coalesces updates into one send per rate window, keeping only the
// latest ops per element id. A window opens on the first update after a send;
// anything pending is flushed when source closes.
func Batch(
	done <-chan struct{},
	source <-chan []EleUpdate,
	rate time.Duration,
) <-chan []EleUpdate {
	output := make(chan []EleUpdate)

	go func() {
		defer close(output)

		pending := map[string]EleUpdate{}
		order := []string{}
		send := func() bool {
			batch := make([]EleUpdate, 0, len(order))
			for _, id := range order {
				batch = append(batch, pending[id])
			}
			pending = map[string]EleUpdate{}
			order = nil
			select {
			case output <- batch:
				return true
			case <-done:
				return false
			}
		}

		var flush <-chan time.Time
		for {
			select {
			case <-done:
				return
			case updates, ok := <-source:
				if !ok {
					if len(order) > 0 {
						send()
					}
					return
				}
				for _, update := range updates {
					if _, seen := pending[update.EleId]; !seen {
						order = append(order, update.EleId)
					}
					pending[update.EleId] = update
				}
				if flush == nil && len(order) > 0 {
					flush = time.After(rate)
				}
			case <-flush:
				flush = nil
				if !send() {
					return
				}
			}
		}
	}()

	return output
}
