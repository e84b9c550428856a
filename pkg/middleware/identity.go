// Package middleware provides shared request-context helpers for the UL gateway.
//
// This package lives in pkg/ (not internal/) so that handler code and any
// embedding service can read the caller identity without importing the HTTP
// middleware that resolves it.
package middleware

import "context"

type contextKey string

const userEmailKey contextKey = "user_email"

// GetUserEmail extracts the caller's email from the context.
// Returns the empty string when no identity was resolved.
func GetUserEmail(ctx context.Context) string {
	if v, ok := ctx.Value(userEmailKey).(string); ok {
		return v
	}
	return ""
}

// SetUserEmail stores the caller's email in the context.
// Called by the identity middleware after resolving the request's user.
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}
