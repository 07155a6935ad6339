package fetch

// taskKind classifies one taskEvent posted to a Fetcher's events.Sink,
// following the teacher's notification-bridge idea of turning internal
// lifecycle points into a small serializable event emitted to a sink
// (notifications/bridge.go), retargeted from registry push/pull events to
// implementation fetch lifecycle.
type taskKind int

const (
	taskStarted taskKind = iota
	taskDone
	taskFailed
)

// taskEvent is written to Fetcher.Sink at the start and end of each
// Implementation fetch, giving a caller (e.g. a CLI progress bar) enough
// to report per-implementation status without polling.
type taskEvent struct {
	Kind   taskKind
	ImplID string
	Err    error
}
