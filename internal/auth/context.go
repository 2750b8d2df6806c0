/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

type contextKey struct{}

// WithClaims returns a context carrying the authenticated claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFrom extracts claims placed by the middleware, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}
