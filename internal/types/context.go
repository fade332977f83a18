package types

// ContextKey namespaces values stored on a context.Context so unrelated
// packages never collide on a bare string key.
type ContextKey string

const (
	// RequestIDContextKey carries the per-request correlation id used in
	// logs, traces, and error Details.
	RequestIDContextKey ContextKey = "request_id"
	// LoggerContextKey carries a request-scoped *logrus.Entry.
	LoggerContextKey ContextKey = "logger"
)

// String implements fmt.Stringer so a ContextKey can be used directly as a
// gin.Context string key.
func (k ContextKey) String() string {
	return string(k)
}

// CleanupFunc is a deferred teardown action registered with a
// ResourceCleaner. It returns the error encountered tearing the resource
// down, if any.
type CleanupFunc func() error
