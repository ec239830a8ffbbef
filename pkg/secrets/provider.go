package secrets

import "context"

// Provider defines a generic secrets manager interface. The router only
// ever resolves whole secrets by key (the rate-feed credential), so the
// surface is deliberately small.
type Provider interface {
	// GetSecret retrieves a secret by key/path and returns a key-value map.
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
