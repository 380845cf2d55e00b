package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
)

// respondError maps the error taxonomy onto HTTP statuses with a
// {error, message} body.
func respondError(c *fiber.Ctx, err error) error {
	var (
		validation *apperror.ValidationError
		notFound   *apperror.NotFoundError
		conflict   *apperror.ConflictError
		upstream   *apperror.UpstreamError
		partial    *apperror.PartialFailure
	)

	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "validation_failed",
			"field":   validation.Field,
			"message": validation.Error(),
		})
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": notFound.Error()})
	case errors.Is(err, apperror.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "You are not allowed to do this"})
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":          "conflict",
			"message":        "This booking is " + conflict.From + " and cannot be changed with " + conflict.Attempted,
			"current_status": conflict.From,
			"attempted":      conflict.Attempted,
		})
	case errors.As(err, &partial):
		log.Errorw("[API] partial failure", "resource", partial.Resource, "local_id", partial.LocalID, "external_id", partial.ExternalID, "error", partial.Err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":       "partial_failure",
			"message":     "The change reached the payment processor but could not be saved locally. An operator has to resync it.",
			"external_id": partial.ExternalID,
		})
	case errors.As(err, &upstream):
		log.Warnw("[API] upstream failure", "op", upstream.Op, "status", upstream.StatusCode, "error", upstream.Err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_unavailable", "message": "The payment processor is not reachable, please retry later"})
	default:
		log.Errorw("[API] request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Something went wrong"})
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}
