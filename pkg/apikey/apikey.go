package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cuemby/cave/internal/caveerr"
	"github.com/cuemby/cave/pkg/metastore"
	"github.com/cuemby/cave/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenBytes   = 24
	prefixLength = 8
)

// Manager issues and verifies API keys against the metadata store.
type Manager struct {
	store *metastore.Store
}

func NewManager(store *metastore.Store) *Manager {
	return &Manager{store: store}
}

// Issue creates a new API key scoped to scope (e.g. "admin" or
// "namespace:acme"), owned by owner (the namespace it acts on behalf of,
// or "" for an admin-scoped key), and rate-limited to rateLimit requests
// per the caller's enforcement window. CAVE only records rate_limit on
// the key; enforcing it is left to the external request surface. The raw
// token is returned once and never stored.
func (m *Manager) Issue(scope, owner string, rateLimit uint32, expiresAt time.Time) (string, *types.APIKey, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, caveerr.NewRuntimeFailure("apikey.Issue", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, caveerr.NewRuntimeFailure("apikey.Issue", err)
	}

	key := &types.APIKey{
		ID:         uuid.NewString(),
		Prefix:     token[:prefixLength],
		BcryptHash: hash,
		Owner:      owner,
		Scope:      scope,
		RateLimit:  rateLimit,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}

	if err := m.store.CreateAPIKey(key); err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("cave_%s", token), key, nil
}

// Verify checks a raw token presented by a caller and returns the
// matching, still-valid key record.
func (m *Manager) Verify(rawToken string) (*types.APIKey, error) {
	token := rawToken
	if len(token) > 5 && token[:5] == "cave_" {
		token = token[5:]
	}
	if len(token) < prefixLength {
		return nil, caveerr.NewUnauthorized("apikey.Verify", fmt.Errorf("malformed token"))
	}

	candidates, err := m.store.ListAPIKeysByPrefix(token[:prefixLength])
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if bcrypt.CompareHashAndPassword(candidate.BcryptHash, []byte(token)) != nil {
			continue
		}
		if !candidate.RevokedAt.IsZero() {
			return nil, caveerr.NewUnauthorized("apikey.Verify", fmt.Errorf("key revoked"))
		}
		if !candidate.ExpiresAt.IsZero() && time.Now().UTC().After(candidate.ExpiresAt) {
			return nil, caveerr.NewUnauthorized("apikey.Verify", fmt.Errorf("key expired"))
		}
		candidate.LastUsedAt = time.Now().UTC()
		if err := m.store.UpdateAPIKey(candidate); err != nil {
			return nil, err
		}
		return candidate, nil
	}

	return nil, caveerr.NewUnauthorized("apikey.Verify", fmt.Errorf("invalid api key"))
}

// Revoke marks a key as revoked, taking effect for future Verify calls.
func (m *Manager) Revoke(id string) error {
	key, err := m.store.GetAPIKey(id)
	if err != nil {
		return err
	}
	key.RevokedAt = time.Now().UTC()
	return m.store.UpdateAPIKey(key)
}

// ClaimsForKey derives the TokenClaims a verified key authenticates as.
func ClaimsForKey(key *types.APIKey) types.TokenClaims {
	return types.TokenClaims{
		Subject: key.ID,
		Scope:   key.Scope,
	}
}
