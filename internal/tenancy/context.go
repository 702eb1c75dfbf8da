package tenancy

import "context"

type ctxKey string

const practiceKey ctxKey = "practice.practice_id"

// WithPracticeID stores the practice id in context.
func WithPracticeID(ctx context.Context, practiceID string) context.Context {
	return context.WithValue(ctx, practiceKey, practiceID)
}

// PracticeIDFromContext extracts the practice id if present.
func PracticeIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(practiceKey)
	if val == nil {
		return "", false
	}
	practiceID, ok := val.(string)
	return practiceID, ok && practiceID != ""
}
