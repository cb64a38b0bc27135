package auth

import "context"

type contextKey struct{}

var subjectKey contextKey

// WithSubject 将认证主体注入上下文。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromContext 从上下文中取出认证主体。
func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	subject, ok := ctx.Value(subjectKey).(*Subject)
	return subject, ok && subject != nil
}
