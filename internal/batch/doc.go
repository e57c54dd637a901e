// Package batch runs credential validation batches on behalf of users.
//
// A Dispatcher turns start and cancel commands into Registry operations.
// The Registry holds at most one Job per owner: TryStart reserves the slot
// before targets are listed and Attach binds the Job afterwards, so two
// concurrent start commands can never both list targets and register.
//
// A Job pre-loads every target into a closed channel and runs
// min(MaxWorkers, len(targets)) workers over it. Each worker checks for
// cancellation, pulls one target, validates it once and posts one message
// to the owner's outbox. A validation already in flight when the job is
// cancelled still finishes and reports; no new one starts.
//
//	Dispatcher          Registry              Job
//	    | TryStart -------->| reserve slot       |
//	    | List targets      |                    |
//	    | Attach ---------->| bind job           |
//	    | go Run ---------------------------------> W workers
//	    |                   |<---- Release ------| all workers exited
//	    | Cancel ---------->| remove + cancel -->| workers stop pulling
//
// Invariants:
//   - an owner maps to a job only while that job is running;
//   - each target produces exactly one message unless the job was
//     cancelled before it was dequeued;
//   - "finished" is sent only when the job itself released its slot and no
//     worker saw the cancellation.
package batch
