package dcontext

import "context"

type feedHostKey struct{}

func (feedHostKey) String() string { return "feedHost" }

// WithFeedHost attaches the host component of the feed URI currently being
// processed, so every log line emitted while fetching or verifying that feed
// carries it without each call site having to pass it explicitly.
func WithFeedHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, feedHostKey{}, host)
}

// GetFeedHost returns the feed host attached by WithFeedHost, or "".
func GetFeedHost(ctx context.Context) string {
	return GetStringValue(ctx, feedHostKey{})
}

// GetStringValue returns the string stored at key in ctx, or "" if absent or
// not a string.
func GetStringValue(ctx context.Context, key interface{}) string {
	v := ctx.Value(key)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
