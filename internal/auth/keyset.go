// Package auth verifies bearer tokens issued by a hosted identity provider
// and resolves them to local user accounts.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The SPA authenticates the user against the identity provider and
//     receives an access token (authorization) and an ID token (profile).
//  2. Each API call carries "Authorization: Bearer <access token>".
//  3. The middleware verifies the access token against the provider's
//     published signing keys (JWKS) and looks up the local user by the
//     token's subject.
//  4. First request ever for a subject: there is no local user yet, and the
//     access token carries no profile claims. The client sends the ID token
//     in the X-ID-Token header; we verify it and register the user from its
//     claims.
//
// The provider signs with RS256 and publishes its public keys at
// https://{domain}/.well-known/jwks.json, indexed by key ID ("kid").
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrKeyNotFound is returned when the provider's key set has no key with
// the requested kid, even after a refresh.
var ErrKeyNotFound = errors.New("auth: signing key not found in provider key set")

// NetworkError wraps a failure to reach the identity provider's JWKS
// endpoint. The caller's credentials were never evaluated, so this maps to
// 503, not 401.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("auth: fetching provider key set: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// KeyProvider yields the RSA public key for a given key ID.
// Implemented by Fetcher (fetch per call) and KeyCache (TTL cache).
type KeyProvider interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// jwk is the subset of an RFC 7517 JSON Web Key we need for RS256.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"` // modulus, base64url
	E   string `json:"e"` // exponent, base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// Fetcher retrieves the provider's key set over HTTPS.
type Fetcher struct {
	url    string
	client *http.Client
}

// NewFetcher creates a Fetcher for the given identity-provider domain,
// e.g. "dev-xyz.us.auth0.com". The JWKS URL follows the well-known layout.
func NewFetcher(domain string) *Fetcher {
	return NewFetcherURL(fmt.Sprintf("https://%s/.well-known/jwks.json", domain))
}

// NewFetcherURL creates a Fetcher for an explicit JWKS URL.
// Used by tests and by providers with non-standard key endpoints.
func NewFetcherURL(url string) *Fetcher {
	return &Fetcher{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch retrieves and parses the current key set, keyed by kid.
// Non-RSA keys are skipped.
func (f *Fetcher) Fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Err: fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)}
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("decoding JWKS response: %w", err)}
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			return nil, fmt.Errorf("auth: parsing JWK %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}

	return keys, nil
}

// Key fetches the current key set and returns the key with the given kid.
// Every call hits the network; wrap a Fetcher in a KeyCache to avoid that.
func (f *Fetcher) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// parseRSAKey reconstructs an RSA public key from the JWK's base64url
// modulus and exponent.
func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := decodeBase64URL(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := decodeBase64URL(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	if n.Sign() <= 0 {
		return nil, errors.New("invalid modulus")
	}

	// Exponent bytes are big-endian; almost always 0x010001 (65537).
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}

// decodeBase64URL accepts both padded and unpadded base64url input, since
// providers differ on padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// KeyCache wraps a Fetcher with a time-bounded cache.
//
// The key set changes rarely (provider key rotation), so fetching it on
// every request adds a network round trip to every API call and makes the
// provider a hard availability dependency. The cache:
//   - serves keys from memory within the TTL,
//   - refreshes through a single-flight group so concurrent misses trigger
//     one fetch,
//   - refreshes immediately on an unknown kid (a rotation may have just
//     happened),
//   - falls back to the stale set when a refresh fails and the kid is known.
type KeyCache struct {
	fetcher *Fetcher
	ttl     time.Duration

	group singleflight.Group

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

// DefaultKeyTTL is how long a fetched key set is considered fresh.
const DefaultKeyTTL = 15 * time.Minute

// NewKeyCache creates a KeyCache around the given Fetcher.
// A ttl of 0 uses DefaultKeyTTL.
func NewKeyCache(fetcher *Fetcher, ttl time.Duration) *KeyCache {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return &KeyCache{
		fetcher: fetcher,
		ttl:     ttl,
	}
}

// Key returns the public key for kid, refreshing the cached set when it is
// stale or does not contain kid.
func (c *KeyCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := c.keys != nil && time.Since(c.fetched) < c.ttl
	c.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		// Stale keys beat no keys when the provider is unreachable.
		if ok {
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// refresh fetches the key set once, no matter how many goroutines arrive
// here concurrently.
func (c *KeyCache) refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("jwks", func() (any, error) {
		keys, err := c.fetcher.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.fetched = time.Now()
		c.mu.Unlock()
		return nil, nil
	})
	return err
}
