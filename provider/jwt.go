package provider

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWT algorithm accepted by [JWTVerifier].
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// JWTConfig configures [JWTVerifier].
//
// For HS256 Key is the shared secret. For Ed25519 Key is the public key,
// raw (32 bytes) or PEM. VerifyKeys, when set, selects the key by the token's
// kid header and takes precedence over Key.
type JWTConfig struct {
	SigningMethod SigningMethod
	Key           []byte
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	// Kind is stamped on produced assertions. Defaults to oauth_b.
	Kind goIdentity.ProviderKind
}

// AssertionClaims is the claim set of a provider assertion token.
type AssertionClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates signed JWT assertions from a provider that issues
// its own tokens.
type JWTVerifier struct {
	config JWTConfig
	method jwt.SigningMethod
}

// NewJWTVerifier validates cfg and returns a verifier.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Kind == "" {
		cfg.Kind = goIdentity.ProviderOAuthB
	}
	if !cfg.Kind.External() {
		return nil, errors.New("assertion kind must be an external provider")
	}

	v := &JWTVerifier{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		v.method = jwt.SigningMethodHS256
		if len(cfg.Key) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("hs256 requires a key")
		}
	case MethodEd25519:
		v.method = jwt.SigningMethodEdDSA
		if len(cfg.Key) > 0 {
			if _, err := parseEdPublicKey(cfg.Key); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.Key) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if _, err := v.verifyKey(key); err != nil {
			return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
		}
	}

	return v, nil
}

// Verify implements [TokenVerifier]. The subject claim becomes the
// assertion's subject id; an email explicitly marked unverified is dropped.
func (v *JWTVerifier) Verify(ctx context.Context, rawToken string) (*goIdentity.ProviderAssertion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	claims, err := v.parse(rawToken)
	if err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, errors.New("assertion has no subject")
	}

	email := strings.TrimSpace(claims.Email)
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		email = ""
	}

	return &goIdentity.ProviderAssertion{
		Kind:        v.config.Kind,
		SubjectID:   subject,
		Email:       email,
		DisplayName: strings.TrimSpace(claims.Name),
	}, nil
}

func (v *JWTVerifier) parse(tokenStr string) (*AssertionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(v.config.Leeway))
	}
	if v.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		options = append(options, jwt.WithAudience(v.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AssertionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != v.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if len(v.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := v.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return v.verifyKey(key)
		}
		return v.verifyKey(v.config.Key)
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AssertionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if claims.IssuedAt != nil && v.config.MaxFutureIAT > 0 {
		maxAllowed := time.Now().Add(v.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, errors.New("token iat too far in the future")
		}
	}

	return claims, nil
}

func (v *JWTVerifier) verifyKey(key []byte) (interface{}, error) {
	if v.config.SigningMethod == MethodHS256 {
		if len(key) == 0 {
			return nil, errors.New("empty hs256 key")
		}
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
