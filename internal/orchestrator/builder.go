package orchestrator

import (
	"context"
	"strings"

	"github.com/lucasnoah/sitefactory/internal/command"
)

// BuildRequest describes the website one attempt needs built.
type BuildRequest struct {
	SessionID string
	WebsiteID string
	Profile   command.Profile
}

// SiteBuilder turns a business profile into a running site and returns its
// base URL.
type SiteBuilder interface {
	Build(ctx context.Context, req BuildRequest) (string, error)
}

// StaticBuilder serves every attempt from one already-running generator.
type StaticBuilder struct {
	BaseURL string
}

// Build implements SiteBuilder.
func (b StaticBuilder) Build(ctx context.Context, req BuildRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.BaseURL != "" {
		return strings.TrimRight(b.BaseURL, "/"), nil
	}
	return req.Profile.BaseURL, nil
}

// BuilderFunc adapts a function to SiteBuilder.
type BuilderFunc func(ctx context.Context, req BuildRequest) (string, error)

// Build implements SiteBuilder.
func (f BuilderFunc) Build(ctx context.Context, req BuildRequest) (string, error) {
	return f(ctx, req)
}
