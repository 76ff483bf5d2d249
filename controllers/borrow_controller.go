package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lendshelf/app"
	"lendshelf/lending"
	"lendshelf/models"
)

// BorrowController exposes the borrow lifecycle and the dashboard lists.
type BorrowController struct {
	lending *lending.Service
	queries *lending.QueryService
	catalog lending.ItemCatalog
}

func NewBorrowController(svc *lending.Service, queries *lending.QueryService, catalog lending.ItemCatalog) *BorrowController {
	return &BorrowController{lending: svc, queries: queries, catalog: catalog}
}

type borrowReq struct {
	// OwnerID is optional; the catalog's owner is used when it is blank.
	OwnerID            string     `json:"ownerId"`
	Notes              string     `json:"notes"`
	ExpectedReturnDate *time.Time `json:"expectedReturnDate"`
	RequestKey         string     `json:"requestKey"`
}

// Request handles POST /api/items/:id/borrow.
func (bc *BorrowController) Request(c *gin.Context) {
	var in borrowReq
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	uid := app.CurrentUserID(c)
	itemID := c.Param("id")

	ownerID := in.OwnerID
	if ownerID == "" {
		item, err := bc.catalog.GetItem(ctx, itemID)
		if err != nil {
			writeError(c, err)
			return
		}
		ownerID = item.OwnerID
	}
	key := c.GetHeader(app.IdempotencyHeader)
	if key == "" {
		key = in.RequestKey
	}

	id, err := bc.lending.RequestBorrow(ctx, lending.RequestInput{
		ItemID:             itemID,
		OwnerID:            ownerID,
		BorrowerID:         uid,
		Notes:              in.Notes,
		ExpectedReturnDate: in.ExpectedReturnDate,
		RequestKey:         key,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := bc.lending.Get(ctx, id, uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"record": rec})
}

func (bc *BorrowController) Get(c *gin.Context) {
	rec, err := bc.lending.Get(c.Request.Context(), c.Param("id"), app.CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"record": rec})
}

type transitionFunc func(ctx context.Context, recordID, callerID string) (*models.BorrowRecord, error)

func (bc *BorrowController) transition(fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := fn(c.Request.Context(), c.Param("id"), app.CurrentUserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, app.H{"record": rec})
	}
}

func (bc *BorrowController) Approve() gin.HandlerFunc      { return bc.transition(bc.lending.Approve) }
func (bc *BorrowController) Decline() gin.HandlerFunc      { return bc.transition(bc.lending.Decline) }
func (bc *BorrowController) MarkBorrowed() gin.HandlerFunc { return bc.transition(bc.lending.MarkBorrowed) }
func (bc *BorrowController) MarkReturned() gin.HandlerFunc { return bc.transition(bc.lending.MarkReturned) }

// Cancel handles DELETE /api/borrows/:id.
func (bc *BorrowController) Cancel(c *gin.Context) {
	if err := bc.lending.Cancel(c.Request.Context(), c.Param("id"), app.CurrentUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

type listFunc func(ctx context.Context, callerID string) ([]lending.EnrichedRecord, error)

func (bc *BorrowController) list(fn listFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		recs, err := fn(c.Request.Context(), app.CurrentUserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, app.H{"items": recs})
	}
}

func (bc *BorrowController) Incoming() gin.HandlerFunc  { return bc.list(bc.queries.ListIncoming) }
func (bc *BorrowController) Sent() gin.HandlerFunc      { return bc.list(bc.queries.ListSent) }
func (bc *BorrowController) Borrowing() gin.HandlerFunc { return bc.list(bc.queries.ListActiveBorrows) }
func (bc *BorrowController) Lending() gin.HandlerFunc   { return bc.list(bc.queries.ListActiveLoans) }
func (bc *BorrowController) History() gin.HandlerFunc   { return bc.list(bc.queries.ListHistory) }
