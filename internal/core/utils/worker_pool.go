package utils

import (
	"context"
	"sync"
)

type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

// RunInPool applies worker to every item using at most maxWorkers
// goroutines. Results are returned in input order. onDone, if set, is called
// from the calling goroutine after each completed item. If any item fails,
// items not yet started are skipped and the error of the lowest failing index
// is returned.
func RunInPool[In any, Out any](ctx context.Context, items []In, worker func(context.Context, In) (Out, error), maxWorkers int, onDone func(done int)) ([]Out, error) {
	workers := max(1, min(len(items), maxWorkers))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int, len(items))
	for i := range items {
		queue <- i
	}
	close(queue)

	completed := make(chan CompletedTask[Out], len(items))

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for idx := range queue {
					if err := ctx.Err(); err != nil {
						completed <- CompletedTask[Out]{Index: idx, Error: err}
						continue
					}

					res, err := worker(ctx, items[idx])
					completed <- CompletedTask[Out]{Index: idx, Result: res, Error: err}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()

	results := make([]Out, len(items))
	firstErr, firstErrIdx := error(nil), len(items)
	done := 0
	for task := range completed {
		done++
		if task.Error != nil {
			if task.Index < firstErrIdx {
				firstErr, firstErrIdx = task.Error, task.Index
			}
			cancel()
		} else {
			results[task.Index] = task.Result
		}
		if onDone != nil {
			onDone(done)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
