package auth

import "context"

// learnerKey carries the authenticated learner ID; JWT "sub" is the
// learner ID everywhere in this service.
type learnerKey struct{}

func WithSubject(ctx context.Context, learnerID string) context.Context {
	return context.WithValue(ctx, learnerKey{}, learnerID)
}

// SubjectFromContext returns the learner ID set by JWTMiddleware, or "".
func SubjectFromContext(ctx context.Context) string {
	id, _ := Subject(ctx)
	return id
}

// Subject reports the learner ID and whether the request carried one.
func Subject(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(learnerKey{}).(string)
	return id, id != ""
}
