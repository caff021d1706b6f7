package auth

import (
	"context"
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"

	"github.com/buildtrix/mvp-studio-backend/internal/users"
)

const (
	CtxAuthUID   = "auth_uid"
	CtxUserDBID  = "user_db_id"
	CtxUserEmail = "user_email"
)

// VerifyToken validates the Firebase ID token from the Authorization header
// and stores the decoded identity on the context. When authClient is nil
// (no credentials configured) the middleware is a no-op and WithUser falls
// back to the X-User-Id header.
func VerifyToken(authClient *fbauth.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authClient == nil {
			c.Next()
			return
		}

		token := extractBearer(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing authorization token"})
			c.Abort()
			return
		}

		decoded, err := authClient.VerifyIDToken(context.Background(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(CtxAuthUID, decoded.UID)
		if email, ok := decoded.Claims["email"].(string); ok {
			c.Set(CtxUserEmail, email)
		}
		c.Next()
	}
}

// WithUser resolves the authenticated identity to a database user row and
// stores its id on the context. Requests with no identity are rejected with
// 401 before any handler runs.
func WithUser(userRepo *users.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetString(CtxAuthUID))
		if uid == "" {
			uid = strings.TrimSpace(c.GetHeader("X-User-Id"))
		}
		if uid == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
			c.Abort()
			return
		}

		email := c.GetString(CtxUserEmail)
		if email == "" {
			email = c.GetHeader("X-User-Email")
		}

		dbID, err := userRepo.EnsureUser(c.Request.Context(), users.UpsertUser{
			AuthUID:     uid,
			Email:       email,
			DisplayName: c.GetHeader("X-User-Name"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "ensure user: " + err.Error()})
			c.Abort()
			return
		}

		c.Set(CtxAuthUID, uid)
		c.Set(CtxUserDBID, dbID)
		c.Next()
	}
}

// UserDBID extracts the database user id set by WithUser.
func UserDBID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxUserDBID))
}

func extractBearer(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return bearerToken[7:]
	}
	return ""
}
