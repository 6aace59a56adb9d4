package services

import "context"

type contextKey string

const (
	jobIDKey         contextKey = "job_id"
	applicationIDKey contextKey = "application_id"
	trackKey         contextKey = "track"
	requestIDKey     contextKey = "request_id"
)

// WithJobID annotates context with the post job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the post job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, jobIDKey)
}

// WithApplicationID annotates context with the application (posted message) identifier.
func WithApplicationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, applicationIDKey, id)
}

// ApplicationIDFromContext returns the application identifier if present.
func ApplicationIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, applicationIDKey)
}

// WithTrack annotates context with the canonical track key.
func WithTrack(ctx context.Context, track string) context.Context {
	if track == "" {
		return ctx
	}
	return context.WithValue(ctx, trackKey, track)
}

// TrackFromContext returns the track key if present.
func TrackFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, trackKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
