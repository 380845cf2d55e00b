package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/booking"
	"github.com/ManuelReschke/TourMarket/internal/pkg/usercontext"
)

// BookingController exposes the booking lifecycle to clients and owners.
type BookingController struct {
	svc *booking.Service
}

func NewBookingController(svc *booking.Service) *BookingController {
	return &BookingController{svc: svc}
}

type createBookingRequest struct {
	PostID               uint                        `json:"post_id"`
	OwnerID              uint                        `json:"owner_id"`
	StartDate            time.Time                   `json:"start_date"`
	EndDate              time.Time                   `json:"end_date"`
	TotalAmount          float64                     `json:"total_amount"`
	Currency             string                      `json:"currency"`
	GuestCount           int                         `json:"guest_count"`
	ClientData           models.ClientData           `json:"client_data"`
	CancellationPolicies []models.CancellationPolicy `json:"cancellation_policies"`
}

type cancelBookingRequest struct {
	CancelledBy string `json:"cancelledBy"`
}

// HandleCreate books a listing for the calling client.
func (bc *BookingController) HandleCreate(c *fiber.Ctx) error {
	var req createBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid booking payload")
	}
	guests := req.GuestCount
	if guests == 0 {
		guests = 1
	}

	b := &models.Booking{
		PostID:               req.PostID,
		ClientID:             usercontext.GetUserID(c),
		OwnerID:              req.OwnerID,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		TotalAmount:          req.TotalAmount,
		Currency:             req.Currency,
		GuestCount:           guests,
		ClientData:           req.ClientData,
		CancellationPolicies: req.CancellationPolicies,
	}
	if err := bc.svc.Create(c.UserContext(), b); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

// HandleList lists the caller's bookings; ?as=owner lists received ones.
func (bc *BookingController) HandleList(c *fiber.Ctx) error {
	asOwner := c.Query("as") == "owner"
	list, err := bc.svc.List(c.UserContext(), usercontext.GetUserID(c), asOwner, c.QueryInt("offset", 0), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"bookings": list})
}

func (bc *BookingController) HandleGet(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid booking id")
	}
	b, err := bc.svc.Get(c.UserContext(), id, usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(b)
}

// HandleAction returns a handler running one owner action.
func (bc *BookingController) HandleAction(action booking.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "Invalid booking id")
		}
		out, err := bc.svc.Apply(c.UserContext(), id, action, usercontext.GetUserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"booking": out.Booking,
			"changed": out.Result.Applied,
		})
	}
}

// HandleCancel cancels a booking and returns the evaluated penalty.
func (bc *BookingController) HandleCancel(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid booking id")
	}
	var req cancelBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid cancellation payload")
	}

	out, err := bc.svc.Cancel(c.UserContext(), id, booking.Actor(req.CancelledBy), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	resp := fiber.Map{
		"status":  out.Booking.Status,
		"message": "Booking cancelled",
	}
	if out.Penalty != nil {
		resp["penaltyAmount"] = out.Penalty.PenaltyAmount
		resp["refundAmount"] = out.Penalty.RefundAmount
		resp["appliedPolicy"] = out.Penalty.AppliedPolicy
	}
	return c.JSON(resp)
}

// HandleQuote previews the cancellation penalty without changing anything.
func (bc *BookingController) HandleQuote(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid booking id")
	}
	p, err := bc.svc.Quote(c.UserContext(), id, usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"daysUntilStart": p.DaysUntilStart,
		"penaltyAmount":  p.PenaltyAmount,
		"refundAmount":   p.RefundAmount,
		"appliedPolicy":  p.AppliedPolicy,
	})
}
