package auth

import (
	"context"

	"github.com/fdg312/adreport/internal/userctx"
)

func WithSubject(ctx context.Context, subject string) context.Context {
	return userctx.WithUserID(ctx, subject)
}

// Subject returns the authenticated caller, if any.
func Subject(ctx context.Context) (string, bool) {
	return userctx.GetUserID(ctx)
}
