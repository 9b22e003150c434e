package toolbridge

// RetryTracker counts failed execution attempts per invocation id and keeps
// the ordered history of error kinds, so the orchestrator can cap model
// self-correction. It is owned by exactly one orchestration run and holds
// no locks; nothing persists past the run.
type RetryTracker struct {
	counts  map[string]int
	history map[string][]ErrorKind
}

// NewRetryTracker creates an empty tracker.
func NewRetryTracker() *RetryTracker {
	return &RetryTracker{
		counts:  make(map[string]int),
		history: make(map[string][]ErrorKind),
	}
}

// IncrementRetryCount bumps the count for id and returns the new value.
func (t *RetryTracker) IncrementRetryCount(id string) int {
	t.counts[id]++
	return t.counts[id]
}

// GetRetryCount returns the current count for id; zero before any increment.
func (t *RetryTracker) GetRetryCount(id string) int {
	return t.counts[id]
}

// ShouldRetry reports whether another attempt for id is allowed under
// maxRetries. The comparison is strict: counts 0..maxRetries-1 may retry,
// maxRetries and beyond may not.
func (t *RetryTracker) ShouldRetry(id string, maxRetries int) bool {
	return t.counts[id] < maxRetries
}

// RecordError appends an error kind to the id's history.
func (t *RetryTracker) RecordError(id string, kind ErrorKind) {
	t.history[id] = append(t.history[id], kind)
}

// ErrorHistory returns the ordered error kinds recorded for id.
func (t *RetryTracker) ErrorHistory(id string) []ErrorKind {
	return t.history[id]
}
