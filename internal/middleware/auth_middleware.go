package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	"github.com/ikkim/delivery-tracker/internal/errors"
	"github.com/ikkim/delivery-tracker/pkg/util"
)

// Context keys for the authenticated caller
const (
	UserIDKey      = "user_id"
	PrincipalKey   = "principal"
	AccessTokenKey = "access_token"
)

type AuthMiddleware struct {
	jwtSecret string
	blacklist service.TokenBlacklist
}

// NewAuthMiddleware builds the middleware. blacklist may be nil, in which
// case revoked tokens stay valid until they expire.
func NewAuthMiddleware(jwtSecret string, blacklist service.TokenBlacklist) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
		blacklist: blacklist,
	}
}

// Authenticate validates the bearer access token (required)
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		var token string
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Invalid authorization header format", map[string]interface{}{
					"path": c.Request.URL.Path,
				})
				errors.RespondWithError(c, http.StatusUnauthorized, errors.AuthTokenInvalid, "Authorization header must be 'Bearer <token>'.")
				c.Abort()
				return
			}
			token = parts[1]
		} else {
			// browsers cannot set headers on a websocket handshake
			token = c.Query("token")
			if token == "" {
				log.Warn("Missing authorization header", map[string]interface{}{
					"path": c.Request.URL.Path,
				})
				errors.Unauthorized(c, "")
				c.Abort()
				return
			}
		}

		claims, err := util.ValidateToken(token, m.jwtSecret)
		if err != nil {
			log.Warn("Token validation failed", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})

			if err == util.ErrExpiredToken {
				errors.RespondWithError(c, http.StatusUnauthorized, errors.AuthTokenExpired, "Token has expired.")
			} else {
				errors.RespondWithError(c, http.StatusUnauthorized, errors.AuthTokenInvalid, "Token is invalid.")
			}
			c.Abort()
			return
		}

		if claims.TokenType != util.TokenTypeAccess {
			log.Warn("Refresh token used as access token", map[string]interface{}{
				"user_id": claims.UserID,
			})
			errors.RespondWithError(c, http.StatusUnauthorized, errors.AuthTokenInvalid, "Token is invalid.")
			c.Abort()
			return
		}

		if m.blacklist != nil {
			revoked, err := m.blacklist.IsTokenBlacklisted(c.Request.Context(), token)
			if err != nil {
				// redis being down should not lock everyone out
				log.Warn("Blacklist lookup failed", map[string]interface{}{
					"error": err.Error(),
				})
			} else if revoked {
				errors.RespondWithError(c, http.StatusUnauthorized, errors.AuthTokenRevoked, "Token has been revoked.")
				c.Abort()
				return
			}
		}

		principal := service.Principal{
			UserID:   claims.UserID,
			Roles:    service.ParseRoleSet(claims.Roles),
			StoreIDs: claims.StoreIDs,
		}
		c.Set(UserIDKey, claims.UserID)
		c.Set(PrincipalKey, principal)
		c.Set(AccessTokenKey, token)

		log.Debug("User authenticated successfully", map[string]interface{}{
			"user_id": claims.UserID,
			"roles":   claims.Roles,
		})

		c.Next()
	}
}

// RequireRoles lets the request through when the caller holds any of roles.
func (m *AuthMiddleware) RequireRoles(roles service.RoleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		principal, ok := GetPrincipal(c)
		if !ok {
			log.Warn("Principal not found in context", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			errors.Unauthorized(c, "")
			c.Abort()
			return
		}

		if !principal.Roles.Has(roles) {
			log.Warn("Insufficient permissions", map[string]interface{}{
				"user_id":        principal.UserID,
				"user_roles":     principal.Roles.Names(),
				"required_roles": roles.Names(),
				"path":           c.Request.URL.Path,
			})
			errors.Forbidden(c, "")
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}

// GetPrincipal returns the caller set by Authenticate.
func GetPrincipal(c *gin.Context) (service.Principal, bool) {
	p, exists := c.Get(PrincipalKey)
	if !exists {
		return service.Principal{}, false
	}
	return p.(service.Principal), true
}

// GetAccessToken returns the raw bearer token of the request.
func GetAccessToken(c *gin.Context) string {
	return c.GetString(AccessTokenKey)
}
