// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/relaymark/courier/app/middleware"
	"github.com/relaymark/courier/app/scheduler"
	"github.com/relaymark/courier/config"
	"github.com/relaymark/courier/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3. The surface is operational
// only: health, metrics and campaign dispatch controls.
type FiberRouter struct {
	app   *fiber.App
	sched *scheduler.DispatchScheduler
	db    *gorm.DB
	rdb   *redis.Client
	cfg   *config.ProductionConfig
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, sched *scheduler.DispatchScheduler, db *gorm.DB, rdb *redis.Client) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Courier API",
		ServerHeader: "Courier",
		ErrorHandler: errorHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:   app,
		sched: sched,
		db:    db,
		rdb:   rdb,
		cfg:   cfg,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.app.Use(recover.New())
	r.app.Use(requestid.New())
	r.app.Use(middleware.Metrics())

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	campaigns := api.Group("/campaigns")
	campaigns.Post("/:id/pause", r.pauseCampaign)
	campaigns.Post("/:id/resume", r.resumeCampaign)
	campaigns.Post("/:id/cancel", r.cancelCampaign)
}

// GetApp returns the underlying Fiber app
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx := c.Context()

	status := fiber.Map{
		"status":    "healthy",
		"timestamp": utils.UTCNowRFC3339(),
	}

	if sqlDB, err := r.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
	} else {
		status["database"] = "ok"
	}

	if err := r.rdb.Ping(ctx).Err(); err != nil {
		status["status"] = "degraded"
		status["redis"] = "unreachable"
	} else {
		status["redis"] = "ok"
	}

	code := fiber.StatusOK
	if status["status"] != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}

func (r *FiberRouter) pauseCampaign(c fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return err
	}
	if err := r.sched.PauseCampaign(c.Context(), id); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"campaign_id": id, "paused": true})
}

func (r *FiberRouter) resumeCampaign(c fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return err
	}
	if err := r.sched.ResumeCampaign(c.Context(), id); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"campaign_id": id, "paused": false})
}

func (r *FiberRouter) cancelCampaign(c fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return err
	}
	n, err := r.sched.CancelCampaign(c.Context(), id)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"campaign_id": id, "canceled_messages": n})
}

func campaignID(c fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid campaign id")
	}
	return uint(id), nil
}

// errorHandler normalizes unhandled errors into a JSON envelope
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"success":   false,
		"message":   err.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
