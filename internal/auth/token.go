// Package auth supplies bearer credentials to the REST client and the
// bidding hub. Token acquisition and storage are the embedding application's
// concern; this package only defines the handoff.
package auth

// TokenProvider returns the current bearer token, or an empty string when
// the user is anonymous. Implementations must be safe for concurrent use.
type TokenProvider interface {
	Token() string
}

// StaticProvider is a TokenProvider that always returns the same token.
type StaticProvider struct {
	Value string
}

func (s StaticProvider) Token() string { return s.Value }

// ProviderFunc adapts a plain function to the TokenProvider interface.
type ProviderFunc func() string

func (f ProviderFunc) Token() string { return f() }
