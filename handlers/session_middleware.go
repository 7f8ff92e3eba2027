package handlers

import (
	"net/http"
	"strings"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/services"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// SessionTokenClaims is the session token the identity provider issues from the auth-event claims
type SessionTokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SessionAuthMiddleware verifies HS256 session tokens and stores the actor in the gin context
type SessionAuthMiddleware struct {
	secret []byte
	// Optional; a cached role replaces the token's role claim
	roles services.RoleCache
}

func NewSessionAuthMiddleware(secret string, roles services.RoleCache) *SessionAuthMiddleware {
	return &SessionAuthMiddleware{secret: []byte(secret), roles: roles}
}

func extractBearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func (m *SessionAuthMiddleware) parse(tokenString string) (*SessionTokenClaims, error) {
	claims := &SessionTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Authenticate rejects requests without a valid session token
func (m *SessionAuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := m.parse(tokenString)
		if err != nil || claims.Subject == "" {
			log.Debug().Err(err).Msg("session token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		role, err := authz.ParseRole(claims.Role)
		if err != nil {
			log.Debug().Str("user_id", claims.Subject).Str("role", claims.Role).Msg("session token carries unknown role")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if m.roles != nil {
			cached, ok, err := m.roles.Get(c.Request.Context(), claims.Subject)
			switch {
			case err != nil:
				log.Warn().Err(err).Str("user_id", claims.Subject).Msg("role cache unavailable, using token role")
			case ok:
				role = cached
			}
		}

		authz.SetActor(c, claims.Subject, claims.Email, role)
		c.Next()
	}
}

// RequireHookKey guards identity-provider hooks with a shared key checked against a bcrypt hash.
// An empty hash rejects every request.
func RequireHookKey(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Hook-Key")
		if keyHash == "" || key == "" ||
			bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
