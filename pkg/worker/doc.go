// Package worker provides a fixed-size consumer pool.
//
// A Pool runs N workers against one shared Source, typically a
// queue.Queue. Every worker loops over a blocking Pull and hands the item to
// the Processor together with its 1-based worker id:
//
//	q, _ := queue.New[*message.Inbound](3)
//	pool, _ := worker.NewPool(3, q, func(ctx context.Context, msg *message.Inbound, id int) error {
//	    return handle(ctx, msg, fmt.Sprintf("students Consumer %d", id))
//	}, worker.WithLogger[*message.Inbound](logger))
//	_ = pool.Start(ctx)
//
// # Failure handling
//
// A processor error or panic is logged with the item (items implementing
// slog.LogValuer log their payload) and counted. The worker then pulls the
// next item.
//
// # Shutdown
//
// Stop cancels the context every Pull waits on. Workers blocked in Pull
// return at once and log a debug line; a worker inside the processor
// completes that item first. Stop waits up to the given timeout and returns
// ErrStopTimeout if a processor is still running. Closing the source has the
// same effect on blocked workers.
//
// # Observability
//
// Statistics are always tracked with atomics (Stats). Prometheus metrics are
// registered when WithMetricsRegistry is given.
package worker
