package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCause classifies why a token failed verification. The middleware
// surfaces the cause-specific message in the 401 body so a misconfigured
// client can tell an expired token from a wrong-audience one.
type TokenCause int

const (
	CauseOther TokenCause = iota
	CauseExpired
	CauseAudienceMismatch
	CauseIssuerMismatch
	CauseSignatureInvalid
	CauseKeyNotFound
	CauseMissingSubject
	CauseMalformed
)

func (c TokenCause) String() string {
	switch c {
	case CauseExpired:
		return "expired"
	case CauseAudienceMismatch:
		return "audience_mismatch"
	case CauseIssuerMismatch:
		return "issuer_mismatch"
	case CauseSignatureInvalid:
		return "signature_invalid"
	case CauseKeyNotFound:
		return "key_not_found"
	case CauseMissingSubject:
		return "missing_subject"
	case CauseMalformed:
		return "malformed"
	}
	return "other"
}

// TokenError is a verification failure with a classified cause.
type TokenError struct {
	Cause   TokenCause
	Message string
	Err     error
}

func (e *TokenError) Error() string {
	return e.Message
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Claims is the token payload we care about. The profile claims (email,
// name, nickname, picture) are only populated on ID tokens; access tokens
// carry just the registered claims.
type Claims struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Picture  string `json:"picture"`
	jwt.RegisteredClaims
}

// DisplayName returns the name claim, falling back to nickname.
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Nickname
}

// Verifier validates RS256 tokens against the provider's published keys.
//
// Two modes share the key lookup and signature mechanics:
//   - VerifyAccessToken: signature, issuer, audience, expiry all enforced.
//   - VerifyIDToken: audience is NOT checked (ID tokens are addressed to
//     the SPA's client ID, not this API), and a non-empty subject is
//     required.
type Verifier struct {
	keys     KeyProvider
	issuer   string
	audience string
}

// NewVerifier creates a Verifier for the given provider domain and API
// audience. The expected issuer is "https://{domain}/" — note the trailing
// slash, which the provider includes in its iss claim.
func NewVerifier(keys KeyProvider, domain, audience string) *Verifier {
	return &Verifier{
		keys:     keys,
		issuer:   fmt.Sprintf("https://%s/", domain),
		audience: audience,
	}
}

// Issuer returns the issuer URL this verifier enforces.
func (v *Verifier) Issuer() string {
	return v.issuer
}

// VerifyAccessToken verifies an access token in strict mode.
func (v *Verifier) VerifyAccessToken(ctx context.Context, raw string) (*Claims, error) {
	return v.verify(ctx, raw, true)
}

// VerifyIDToken verifies an ID token in relaxed mode (no audience check)
// and requires a subject claim.
func (v *Verifier) VerifyIDToken(ctx context.Context, raw string) (*Claims, error) {
	claims, err := v.verify(ctx, raw, false)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, &TokenError{
			Cause:   CauseMissingSubject,
			Message: "ID token missing required claim: sub",
		}
	}
	return claims, nil
}

func (v *Verifier) verify(ctx context.Context, raw string, checkAudience bool) (*Claims, error) {
	// Check the issuer on the unverified payload first. This keeps the
	// issuer_mismatch classification independent of signature validity:
	// a token minted by another issuer is reported as such even if it is
	// also signed with a key we don't know.
	if err := v.checkIssuer(raw); err != nil {
		return nil, err
	}

	keyfunc := func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token header missing kid")
		}
		return v.keys.Key(ctx, kid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if checkAudience {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, keyfunc, opts...)
	if err != nil {
		return nil, v.classify(err)
	}
	if !token.Valid {
		return nil, &TokenError{Cause: CauseOther, Message: "token verification failed"}
	}

	return claims, nil
}

// checkIssuer compares the unverified iss claim against the configured
// issuer. Malformed tokens fail here with a malformed classification.
func (v *Verifier) checkIssuer(raw string) error {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return &TokenError{
			Cause:   CauseMalformed,
			Message: "malformed token",
			Err:     err,
		}
	}
	if claims.Issuer != v.issuer {
		return &TokenError{
			Cause:   CauseIssuerMismatch,
			Message: fmt.Sprintf("token issuer mismatch. Expected: %s", v.issuer),
		}
	}
	return nil
}

// classify translates jwt library and key-lookup errors into our taxonomy.
// A NetworkError from the key provider passes through unclassified so the
// middleware can distinguish "provider unreachable" from "bad token".
func (v *Verifier) classify(err error) error {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr
	}

	switch {
	case errors.Is(err, ErrKeyNotFound):
		return &TokenError{
			Cause:   CauseKeyNotFound,
			Message: "unable to find appropriate key for token",
			Err:     err,
		}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &TokenError{
			Cause:   CauseExpired,
			Message: "token has expired",
			Err:     err,
		}
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return &TokenError{
			Cause:   CauseAudienceMismatch,
			Message: fmt.Sprintf("token audience mismatch. Expected: %s", v.audience),
			Err:     err,
		}
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return &TokenError{
			Cause:   CauseIssuerMismatch,
			Message: fmt.Sprintf("token issuer mismatch. Expected: %s", v.issuer),
			Err:     err,
		}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &TokenError{
			Cause:   CauseSignatureInvalid,
			Message: "token signature verification failed",
			Err:     err,
		}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &TokenError{
			Cause:   CauseMalformed,
			Message: "malformed token",
			Err:     err,
		}
	}

	return &TokenError{
		Cause:   CauseOther,
		Message: "token verification failed",
		Err:     err,
	}
}
