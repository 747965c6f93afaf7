package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marketplace-registry/marketplace-registry/internal/auth"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
)

// Context keys populated by the auth middleware.
const (
	UserKey       = "user"
	UserIDKey     = "user_id"
	AuthMethodKey = "auth_method"
)

// Authenticator resolves Bearer credentials to a user account. Two credential
// kinds are accepted: session tokens (verified statelessly, then the user is
// loaded by ID) and API keys (prefix-indexed lookup plus bcrypt comparison).
// Tokens are tried first because they need no database work to reject.
type Authenticator struct {
	issuer *auth.TokenIssuer
	users  *repositories.UserRepository
}

// NewAuthenticator creates an Authenticator. The token issuer may be nil when
// session auth is not configured, in which case only API keys are accepted.
func NewAuthenticator(issuer *auth.TokenIssuer, users *repositories.UserRepository) *Authenticator {
	return &Authenticator{issuer: issuer, users: users}
}

// Require aborts with 401 unless the request carries valid credentials for an
// active account. On success the user is stored in the context.
func (a *Authenticator) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}

		user, method, err := a.resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "authentication failed",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid credentials",
			})
			return
		}
		if user.Status != models.UserStatusActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "account is not active",
			})
			return
		}

		setIdentity(c, user, method)
		c.Next()
	}
}

// Optional resolves credentials when present but never aborts. Public read
// endpoints use it so authenticated callers get user-scoped rate limit keys.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err == nil {
			if user, method, err := a.resolve(c.Request.Context(), token); err == nil &&
				user != nil && user.Status == models.UserStatusActive {
				setIdentity(c, user, method)
			}
		}
		c.Next()
	}
}

func (a *Authenticator) resolve(ctx context.Context, token string) (*models.User, string, error) {
	if a.issuer != nil {
		if claims, err := a.issuer.Verify(token); err == nil {
			user, err := a.users.GetUserByID(ctx, claims.UserID)
			return user, "token", err
		}
	}

	prefix := token
	if len(prefix) > auth.DisplayPrefixLength {
		prefix = prefix[:auth.DisplayPrefixLength]
	}
	candidates, err := a.users.FindByAPIKeyPrefix(ctx, prefix)
	if err != nil {
		return nil, "", err
	}
	for _, user := range candidates {
		if user.APIKeyHash != nil && auth.ValidateAPIKey(token, *user.APIKeyHash) {
			return user, "api_key", nil
		}
	}
	return nil, "", nil
}

func setIdentity(c *gin.Context, user *models.User, method string) {
	c.Set(UserKey, user)
	c.Set(UserIDKey, user.ID.String())
	c.Set(AuthMethodKey, method)
}

// RequireAdmin aborts with 403 unless the authenticated user is an admin.
// Must run after Require.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "admin role required",
			})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil when the request is
// anonymous.
func CurrentUser(c *gin.Context) *models.User {
	if v, exists := c.Get(UserKey); exists {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
