package v1

import (
	"github.com/andreyxaxa/Event-Gateway/internal/usecase"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func NewEventRoutes(apiV1Group fiber.Router, ev usecase.EventUseCase, l logger.Interface) {
	r := &V1{ev: ev, logger: l}

	{
		apiV1Group.Get("/events", r.listEvents)
		apiV1Group.Get("/events/:id", r.getEvent)
		apiV1Group.Get("/events/:id/deliveries", r.listDeliveries)
	}
}
