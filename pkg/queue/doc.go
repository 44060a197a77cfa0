// Package queue provides a bounded, blocking FIFO queue with context-aware
// push and pull.
//
// A subscriber owns exactly one Queue shared by all of its consumer workers.
// Delivery callbacks Push; when the queue is full they wait, which is how
// backpressure reaches the transport. Workers Pull; when the queue is empty
// they wait.
//
// Shutdown is cooperative: cancel the context the workers pull with, or call
// Close, which wakes every blocked caller with ErrClosed and discards what is
// still queued.
//
//	q, _ := queue.New[*message.Inbound](3, queue.WithMetrics(reg, "students"))
//	go func() {
//	    for {
//	        msg, err := q.Pull(ctx)
//	        if err != nil {
//	            return
//	        }
//	        handle(msg)
//	    }
//	}()
//	_ = q.Push(ctx, msg)
package queue
