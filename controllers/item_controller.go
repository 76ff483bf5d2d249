package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lendshelf/app"
	"lendshelf/db"
	"lendshelf/lending"
	"lendshelf/models"
)

type ItemController struct {
	repo    *db.Repo
	queries *lending.QueryService
}

func NewItemController(repo *db.Repo, queries *lending.QueryService) *ItemController {
	return &ItemController{repo: repo, queries: queries}
}

// CreateItem registers an item owned by the caller.
func (ic *ItemController) CreateItem(c *gin.Context) {
	var in struct {
		Name   string `json:"name" binding:"required"`
		Serial string `json:"serial" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	it := &models.Item{
		ID:      uuid.NewString(),
		OwnerID: app.CurrentUserID(c),
		Name:    strings.TrimSpace(in.Name),
		Serial:  strings.TrimSpace(in.Serial),
	}
	if err := ic.repo.CreateItem(c.Request.Context(), it); err != nil {
		if errors.Is(err, db.ErrSerialTaken) {
			c.JSON(http.StatusConflict, app.H{"error": "serial_taken", "message": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"item": it})
}

// ListItems lists active items; ?owner=me narrows to the caller's own.
func (ic *ItemController) ListItems(c *gin.Context) {
	owner := ""
	if c.Query("owner") == "me" {
		owner = app.CurrentUserID(c)
	}
	items, err := ic.repo.ListItems(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": items})
}

// GetItem returns the item and whether it can take a new borrow request.
func (ic *ItemController) GetItem(c *gin.Context) {
	ctx := c.Request.Context()
	it, err := ic.repo.FindItemByID(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	av, err := ic.queries.ItemAvailability(ctx, it.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"item": it, "availability": av})
}

// RetireItem takes one of the caller's items out of circulation. Records
// already open on it run to completion.
func (ic *ItemController) RetireItem(c *gin.Context) {
	n, err := ic.repo.RetireItem(c.Request.Context(), c.Param("id"), app.CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if n == 0 {
		c.JSON(http.StatusNotFound, app.H{"error": "not_found", "message": "item not found"})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
