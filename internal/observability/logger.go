package observability

import logs "github.com/danmuck/smplog"

// ComponentLogger derives a child of the global logger tagged with the
// worker id and component name.
func ComponentLogger(workerID, component string) logs.Logger {
	return logs.With().
		Str("worker_id", workerID).
		Str("component", component).
		Logger()
}
