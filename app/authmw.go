package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lendshelf/lending"
	"lendshelf/models"
	"lendshelf/session"
)

const (
	AppSessionCookie = "app_session"

	ctxUserID   = "userID"
	ctxUsername = "username"
)

// MemberFinder resolves the member behind a session.
type MemberFinder interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// SessionReader is the part of session.AppSessionStore the middleware needs.
type SessionReader interface {
	Get(ctx context.Context, id string) (*session.AppSession, error)
	Delete(ctx context.Context, id string) error
}

// AuthRequired answers 401 when the session or its member is gone and 503
// when either store cannot be reached. The session survives a 503.
func AuthRequired(appSess SessionReader, members MemberFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "not_authenticated", "message": "login required"})
			return
		}
		as, err := appSess.Get(c.Request.Context(), ck.Value)
		if errors.Is(err, session.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "not_authenticated", "message": "invalid session"})
			return
		}
		if err != nil {
			abortUnavailable(c, "session store unavailable")
			return
		}

		// A deleted member's sessions die with them.
		u, err := members.FindUserByID(c.Request.Context(), as.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = appSess.Delete(c.Request.Context(), ck.Value)
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "not_authenticated", "message": "login required"})
			return
		}
		if err != nil {
			abortUnavailable(c, "member lookup unavailable")
			return
		}
		SetCurrentUser(c, u.ID, u.Username)
		c.Next()
	}
}

func abortUnavailable(c *gin.Context, msg string) {
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, H{"error": lending.KindUnavailable.String(), "message": msg})
}

func SetCurrentUser(c *gin.Context, userID, username string) {
	c.Set(ctxUserID, userID)
	c.Set(ctxUsername, username)
}

// CurrentUserID is the authenticated member, or "" outside AuthRequired.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func CurrentUsername(c *gin.Context) string {
	return c.GetString(ctxUsername)
}
