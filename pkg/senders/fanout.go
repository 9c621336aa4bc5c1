package senders

import (
	"context"
	"sync"
)

// fanOutLimit bounds concurrent provider calls per message.
const fanOutLimit = 5

// fanOut dispatches send for every target with bounded concurrency and joins
// before returning. Failures are keyed by target.
func fanOut(ctx context.Context, targets []string, send func(ctx context.Context, target string) error) (delivered int, failures map[string]string) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	failures = make(map[string]string)
	slots := make(chan struct{}, fanOutLimit)

	for _, target := range targets {
		wg.Add(1)
		slots <- struct{}{}

		go func(target string) {
			defer wg.Done()
			defer func() { <-slots }()

			err := send(ctx, target)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failures[target] = err.Error()

				return
			}

			delivered++
		}(target)
	}

	wg.Wait()

	return delivered, failures
}
