// Package credentials resolves charge point secrets for HTTP basic
// authentication on the upgrade request.
package credentials

import "context"

// Resolver looks up the expected secret for a charge point id. ok is false
// when the id is unknown.
type Resolver interface {
	Lookup(ctx context.Context, clientID string) (secret string, ok bool, err error)
}

// Static resolves from a fixed map, typically loaded from configuration.
type Static map[string]string

func (s Static) Lookup(_ context.Context, clientID string) (string, bool, error) {
	secret, ok := s[clientID]
	return secret, ok, nil
}
