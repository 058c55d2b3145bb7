package oidc

import (
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

var errKeyNotFound = errors.New("no matching signing key")

// candidateKeys selects the verification keys for a token. With a key ID only
// the matching key is returned; without one every usable key in the set is.
func candidateKeys(kid string, keys jwk.Set) ([]any, error) {
	if kid != "" {
		key, ok := keys.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("%w: kid %q", errKeyNotFound, kid)
		}
		raw, err := exportKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: kid %q: %v", ErrInvalidToken, kid, err)
		}
		return []any{raw}, nil
	}

	var out []any
	for i := 0; i < keys.Len(); i++ {
		key, ok := keys.Key(i)
		if !ok {
			continue
		}
		raw, err := exportKey(key)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	if len(out) == 0 {
		return nil, errKeyNotFound
	}
	return out, nil
}

func exportKey(key jwk.Key) (any, error) {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key: %w", err)
	}
	return raw, nil
}
