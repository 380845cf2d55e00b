package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/apperror"
	"github.com/ManuelReschke/TourMarket/internal/pkg/billing"
	"github.com/ManuelReschke/TourMarket/internal/pkg/usercontext"
)

// BillingController receives processor webhooks and starts subscriptions.
type BillingController struct {
	webhooks      *billing.WebhookService
	plans         *billing.PlanSyncService
	subscriptions repository.SubscriptionRepository
	planCatalog   repository.PlanRepository
	webhookSecret string
}

func NewBillingController(
	webhooks *billing.WebhookService,
	plans *billing.PlanSyncService,
	subscriptions repository.SubscriptionRepository,
	planCatalog repository.PlanRepository,
	webhookSecret string,
) *BillingController {
	return &BillingController{
		webhooks:      webhooks,
		plans:         plans,
		subscriptions: subscriptions,
		planCatalog:   planCatalog,
		webhookSecret: strings.TrimSpace(webhookSecret),
	}
}

// HandlePaymentWebhook acknowledges handled or ignorable deliveries with 200
// and answers 5xx when the processor should retry.
func (bc *BillingController) HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.Body()...)

	n, err := billing.ParseNotification(rawBody)
	if err != nil {
		log.Warnw("[Billing] malformed webhook", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	d := billing.Delivery{
		Notification: n,
		Payload:      rawBody,
		ReceivedAt:   time.Now().UTC(),
	}
	if bc.webhookSecret != "" {
		d.SignatureChecked = true
		d.SignatureValid = billing.VerifyMercadoPagoSignature(c.Get("x-signature"), c.Get("x-request-id"), n.Data.ID.String(), bc.webhookSecret)
	}

	res, err := bc.webhooks.Process(c.UserContext(), d)
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "invalid signature"})
	case apperror.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed", "message": "retry later"})
	}

	return c.JSON(fiber.Map{"received": true, "duplicate": res.Duplicate})
}

type checkoutRequest struct {
	PlanID     uint   `json:"plan_id"`
	PayerEmail string `json:"payer_email"`
}

// HandleCheckout starts a processor subscription for the caller.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid checkout payload")
	}
	pre, err := bc.plans.Checkout(c.UserContext(), req.PlanID, usercontext.GetUserID(c), req.PayerEmail)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"preapproval_id": pre.ID.String(),
		"init_point":     pre.InitPoint,
	})
}

// HandleListPlans lists the active plans.
func (bc *BillingController) HandleListPlans(c *fiber.Ctx) error {
	plans, err := bc.planCatalog.List(c.UserContext(), true)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleMySubscriptions lists the caller's subscriptions.
func (bc *BillingController) HandleMySubscriptions(c *fiber.Ctx) error {
	subs, err := bc.subscriptions.ListByUser(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}
