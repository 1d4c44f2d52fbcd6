package provider

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
)

// Profile is the normalized identity a provider reports after login.
// Sub is the provider's stable subject identifier; email may be empty for
// providers that hide it, in which case the login is refused upstream.
type Profile struct {
	Sub         string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Provider is one external OAuth identity source. Implementations build
// the authorization URL, exchange the callback code for a token and fetch
// the user's profile. Adding a provider means adding an implementation and
// registering it in main; nothing else changes.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// Registry holds the configured providers, keyed by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Name())] = p
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", apperrors.ErrValidation, name)
	}
	return p, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
