/*
Package dispatch runs tile renders on a fixed pool of worker goroutines.

Request handlers never render tiles themselves. They Submit the work, which
returns a Future immediately, and then Await that Future with their own
deadline. The pool size bounds how many renders execute at once no matter how
many requests are in flight; the rest wait in a FIFO queue.

Queueing policy:

  - QueueSize 0 (the default) keeps an unbounded queue. Submit never fails
    while the dispatcher is open.
  - QueueSize > 0 bounds the queue. A Submit that would exceed it is rejected
    with errors.ErrQueueFull rather than blocking or silently dropping work.

A caller that stops waiting (deadline or cancellation) while its work is
still queued cancels that work; a worker that later picks it up skips it.
Work that is already running is never interrupted by its submitter. It
finishes, and its result is discarded if nobody is waiting.
*/
package dispatch
