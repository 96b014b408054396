package intake

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// SessionContextKey is where RequireSession stores the verified claims.
const SessionContextKey = "intake_session"

// SessionClaims carries the authenticated account identity. The portal only
// cares about the subject; roles and audiences live with the identity
// provider.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid,omitempty"`
}

// UserID returns the account id the session belongs to, preferring the uid
// claim over the subject.
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// SessionVerifier validates bearer tokens minted by the identity provider.
type SessionVerifier struct {
	signingKey []byte
	issuer     string
	logger     Logger
}

// NewSessionVerifier creates a verifier for HMAC signed session tokens.
func NewSessionVerifier(signingKey []byte, issuer string) *SessionVerifier {
	return &SessionVerifier{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     defLogger{},
	}
}

// WithLogger overrides the logger used by the verifier.
func (v *SessionVerifier) WithLogger(logger Logger) *SessionVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// Validate parses and validates a token string, returning structured claims.
func (v *SessionVerifier) Validate(tokenString string) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			v.logger.Error("SessionVerifier encountered unexpected signing method alg=%v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, NewUnauthenticatedError()
		}
		return nil, NewUnauthenticatedError()
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		v.logger.Error("SessionVerifier could not decode or validate claims")
		return nil, NewUnauthenticatedError()
	}

	return claims, nil
}

// RequireSession rejects requests without a valid bearer token and stores the
// claims in the request locals for the handlers downstream.
func RequireSession(verifier *SessionVerifier) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			tokenString, err := bearerToken(ctx)
			if err != nil {
				return ctx.JSON(router.StatusUnauthorized, map[string]string{
					"error": "missing or malformed session token",
				})
			}

			claims, err := verifier.Validate(tokenString)
			if err != nil {
				return ctx.JSON(router.StatusUnauthorized, map[string]string{
					"error": "invalid or expired session token",
				})
			}

			ctx.Locals(SessionContextKey, claims)
			return ctx.Next()
		}
	}
}

func bearerToken(ctx router.Context) (string, error) {
	a := ctx.GetString(router.HeaderAuthorization, "")
	scheme := "Bearer"
	if len(a) > len(scheme)+1 && strings.EqualFold(a[:len(scheme)], scheme) {
		return strings.TrimSpace(a[len(scheme):]), nil
	}
	return "", goerrors.New("missing or malformed authorization header", goerrors.CategoryAuth)
}

// SessionUserID reads the authenticated account id stored by RequireSession.
func SessionUserID(ctx router.Context) (uuid.UUID, error) {
	claims, ok := ctx.Locals(SessionContextKey).(*SessionClaims)
	if !ok || claims == nil {
		return uuid.Nil, NewUnauthenticatedError()
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, NewUnauthenticatedError()
	}

	return userID, nil
}
