package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lendshelf/app"
	"lendshelf/db"
)

type NotificationController struct {
	notes *db.NotificationRepo
}

func NewNotificationController(notes *db.NotificationRepo) *NotificationController {
	return &NotificationController{notes: notes}
}

// GET /api/notifications?limit=
func (nc *NotificationController) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	ns, err := nc.notes.ListForRecipient(c.Request.Context(), app.CurrentUserID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": ns})
}
