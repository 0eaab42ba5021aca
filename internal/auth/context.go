// ABOUTME: Request context carrying the authenticated learner
// ABOUTME: WithLearner/LearnerFromContext propagate identity from middleware to handlers

package auth

import "context"

// learnerKey is the context key for the learner ID.
type learnerKey struct{}

// WithLearner returns a context carrying learnerID.
func WithLearner(ctx context.Context, learnerID string) context.Context {
	return context.WithValue(ctx, learnerKey{}, learnerID)
}

// LearnerFromContext returns the learner ID set by Middleware, or "".
func LearnerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(learnerKey{}).(string)
	return id
}
