// Package workerpool provides bounded parallel mapping over a fixed work set.
package workerpool

import (
	"context"
	"sync"
)

// Map processes items with up to workerCount goroutines and returns the
// results in input order. The first error cancels outstanding work and is
// returned; results are only valid when the error is nil.
func Map[T, R any](
	ctx context.Context,
	workerCount int,
	items []T,
	process func(context.Context, T) (R, error),
) ([]R, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if workerCount > len(items) {
		workerCount = len(items)
	}

	type task struct {
		index int
		item  T
	}

	results := make([]R, len(items))
	tasks := make(chan task)
	errs := make(chan error, workerCount)
	wg := sync.WaitGroup{}

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case tk, ok := <-tasks:
					if !ok {
						return
					}
					res, err := process(ctx, tk.item)
					if err != nil {
						select {
						case errs <- err:
						default:
						}
						cancel()
						return
					}
					results[tk.index] = res
				}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for i, item := range items {
			select {
			case <-ctx.Done():
				return
			case tasks <- task{index: i, item: item}:
			}
		}
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
