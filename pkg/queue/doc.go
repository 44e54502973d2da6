// Package queue runs background billing work: payment confirmations that
// arrive by webhook, and the periodic subscription sweep.
//
// Three components share a storage backend through small interfaces:
//
//   - Enqueuer adds one-time tasks with a JSON payload.
//   - Scheduler turns a Schedule (fixed interval or cron expression) into
//     periodic tasks, creating at most one pending task per name.
//   - Worker claims due tasks, dispatches them to a Handler and retries
//     failures with linear backoff until MaxRetries, after which the task is
//     moved to the dead letter table.
//
// MemoryStorage backs tests and single-process deployments. PostgresStorage
// claims with FOR UPDATE SKIP LOCKED so several replicas can share a queue.
//
//	enq, _ := queue.NewEnqueuer(store)
//	_ = enq.Enqueue(ctx, confirmation.ConfirmTask{Reference: ref})
//
//	w, _ := queue.NewWorker(store, queue.WithWorkerLogger(log))
//	_ = w.RegisterHandlers(
//		queue.NewTaskHandler(handler.Confirm),
//		queue.NewPeriodicTaskHandler("billing.sweep", sweeper.Run),
//	)
//	g.Go(w.Run(ctx))
package queue
