package session

import "context"

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, &holder{sess: *s})
}

func holderFrom(ctx context.Context) *holder {
	h, _ := ctx.Value(ctxKey{}).(*holder)
	return h
}

// FromContext returns a snapshot of the request's session, or nil.
func FromContext(ctx context.Context) *Session {
	h := holderFrom(ctx)
	if h == nil {
		return nil
	}
	s := h.get()
	return &s
}

// IDFromContext returns the session id, or "" for anonymous requests.
func IDFromContext(ctx context.Context) string {
	if h := holderFrom(ctx); h != nil {
		return h.get().ID
	}
	return ""
}

// EmailFromContext returns the signed-in user's email, or "".
func EmailFromContext(ctx context.Context) string {
	if h := holderFrom(ctx); h != nil {
		return h.get().Email
	}
	return ""
}
