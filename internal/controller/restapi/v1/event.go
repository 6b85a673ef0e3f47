package v1

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/controller/restapi/v1/response"
	"github.com/andreyxaxa/Event-Gateway/internal/repo"
	"github.com/andreyxaxa/Event-Gateway/pkg/types/errs"
	"github.com/gofiber/fiber/v2"
)

const (
	_defaultLimit = 100
	_maxLimit     = 1000
)

func (r *V1) listEvents(ctx *fiber.Ctx) error {
	filter := repo.EventFilter{
		StreamID: ctx.Query("stream_id"),
		Kind:     ctx.Query("kind"),
		Limit:    _defaultLimit,
	}

	// 1. временной диапазон
	if fromStr := ctx.Query("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return errorResponse(ctx, http.StatusBadRequest, "from must be RFC3339")
		}
		filter.From = from
	}

	if toStr := ctx.Query("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return errorResponse(ctx, http.StatusBadRequest, "to must be RFC3339")
		}
		filter.To = to
	}

	// 2. пагинация
	if limitStr := ctx.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return errorResponse(ctx, http.StatusBadRequest, "limit must be a positive number")
		}
		if limit > _maxLimit {
			limit = _maxLimit
		}
		filter.Limit = limit
	}

	if offsetStr := ctx.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return errorResponse(ctx, http.StatusBadRequest, "offset must be a non-negative number")
		}
		filter.Offset = offset
	}

	events, err := r.ev.List(ctx.UserContext(), filter)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - listEvents")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	resp := make([]response.Event, 0, len(events))
	for _, event := range events {
		resp = append(resp, response.NewEvent(event))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (r *V1) getEvent(ctx *fiber.Ctx) error {
	id, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil || id < 1 {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	event, err := r.ev.GetByID(ctx.UserContext(), id)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "event not found")
		}
		r.logger.Error(err, "restapi - v1 - getEvent")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewEvent(event))
}

func (r *V1) listDeliveries(ctx *fiber.Ctx) error {
	id, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil || id < 1 {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	tasks, err := r.ev.ListDeliveries(ctx.UserContext(), id)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "event not found")
		}
		r.logger.Error(err, "restapi - v1 - listDeliveries")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	resp := make([]response.DeliveryTask, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, response.NewDeliveryTask(task))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}
