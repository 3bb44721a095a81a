// Package jobs defines the task types taskline runs and the executor that
// runs them.
//
// Every task type has a Command struct. Decode validates a stored payload
// into its Command, and Executor dispatches Commands to the Syncer,
// BriefGenerator and Translator collaborators. The daily slot fan-out
// generates briefs for all users of one UTC hour. It reports progress per
// user and honors cancellation between users.
//
//	exec := jobs.NewExecutor(
//		jobs.WithSyncer(syncer),
//		jobs.WithBriefGenerator(briefs),
//		jobs.WithUserDirectory(users),
//	)
//	worker, err := queue.NewWorker(storage, exec, publisher)
//
//	task, err := jobs.Submit(ctx, enqueuer, jobs.SyncAll{UserID: 42})
package jobs
