package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lendshelf/app"
)

// Me handles GET /api/me.
func (s *Srv) Me(c *gin.Context) {
	u, err := s.Repo.FindUserByID(c.Request.Context(), app.CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "not_authenticated", "message": "login required"})
		return
	}
	creds, err := s.Repo.LoadUserCredentials(c.Request.Context(), u.ID)
	if err != nil {
		s.internal(c, "load credentials", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": u, "passkeys": len(creds)})
}
