package restapi

import (
	v1 "github.com/andreyxaxa/Event-Gateway/internal/controller/restapi/v1"
	"github.com/andreyxaxa/Event-Gateway/internal/usecase"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(app *fiber.App, ev usecase.EventUseCase, l logger.Interface, reg *prometheus.Registry) {
	// Probes
	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		return ctx.SendStatus(fiber.StatusOK)
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Routers
	apiV1Group := app.Group("/v1")
	{
		v1.NewEventRoutes(apiV1Group, ev, l)
	}
}
