package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"lendshelf/app"
	"lendshelf/controllers"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)
	borrowCtl := controllers.NewBorrowController(a.Lending, a.Queries, a.Repo)
	itemCtl := controllers.NewItemController(a.Repo, a.Queries)
	noteCtl := controllers.NewNotificationController(a.Notifications)

	authMW := app.AuthRequired(a.AppSessions(), a.Repo)
	seenMW := app.TouchLastSeen(a.Repo, a.RDB, a.Config.LastSeenThrottle)

	r.Use(otelgin.Middleware("lendshelf"))

	r.GET("/healthz", func(c *app.Ctx) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.RDB.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "redis": err.Error()})
			return
		}
		if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, app.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Passkey auth
	wa := r.Group("/webauthn")
	{
		wa.POST("/register/begin", s.BeginRegistration)
		wa.POST("/register/finish", s.FinishRegistration)
		wa.POST("/login/begin", s.BeginLogin)
		wa.POST("/login/finish", s.FinishLogin)
		wa.POST("/logout", authMW, s.Logout)
	}

	api := r.Group("/api", authMW, seenMW)
	api.GET("/me", s.Me)
	api.POST("/credentials/add/begin", s.BeginAddCredential)
	api.POST("/credentials/add/finish", s.FinishAddCredential)
	api.GET("/notifications", noteCtl.List)

	items := api.Group("/items")
	{
		items.POST("", itemCtl.CreateItem)
		items.GET("", itemCtl.ListItems)
		items.GET("/:id", itemCtl.GetItem)
		items.DELETE("/:id", itemCtl.RetireItem)
		items.POST("/:id/borrow", borrowCtl.Request)
	}

	RegisterBorrowRoutes(api.Group("/borrows"), borrowCtl)
}

// RegisterBorrowRoutes mounts the borrow lifecycle on g. The caller must
// already have resolved the member.
func RegisterBorrowRoutes(g *gin.RouterGroup, bc *controllers.BorrowController) {
	// Static list paths are registered before :id.
	g.GET("/incoming", bc.Incoming())
	g.GET("/sent", bc.Sent())
	g.GET("/borrowing", bc.Borrowing())
	g.GET("/lending", bc.Lending())
	g.GET("/history", bc.History())

	g.GET("/:id", bc.Get)
	g.POST("/:id/approve", bc.Approve())
	g.POST("/:id/decline", bc.Decline())
	g.POST("/:id/borrowed", bc.MarkBorrowed())
	g.POST("/:id/returned", bc.MarkReturned())
	g.DELETE("/:id", bc.Cancel)
}
