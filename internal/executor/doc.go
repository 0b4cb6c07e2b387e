// Package executor provides the bounded worker pool used for async work
// started by request handlers.
//
// Sizing follows the usual core/max/queue model: up to CoreSize workers
// are started as tasks arrive, further tasks queue, and only a full queue
// grows the pool toward MaxSize. A task the pool cannot take is rejected
// with ErrRejected or, under PolicyCallerRuns, run by the submitter.
//
// With WithDecorator the submitter's trace context is captured at Execute
// and installed on the worker for the duration of the task.
package executor
