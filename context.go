package filmila

import "context"

type ctxKey string

const (
	ctxKeySession   ctxKey = "filmila_session"
	ctxKeyProfile   ctxKey = "filmila_profile"
	ctxKeyRequestID ctxKey = "filmila_request_id"
)

// WithSession stores the authenticated session in the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SessionFromContext extracts the authenticated session, or nil.
func SessionFromContext(ctx context.Context) *Session {
	v, _ := ctx.Value(ctxKeySession).(*Session)
	return v
}

// WithProfile stores the hydrated profile in the context.
func WithProfile(ctx context.Context, p *Profile) context.Context {
	return context.WithValue(ctx, ctxKeyProfile, p)
}

// ProfileFromContext extracts the hydrated profile, or nil.
func ProfileFromContext(ctx context.Context) *Profile {
	v, _ := ctx.Value(ctxKeyProfile).(*Profile)
	return v
}

// WithRequestID stores a request correlation id in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext extracts the request correlation id, or "".
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}
