package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/wildshoppers/portal/flow"
	"github.com/wildshoppers/portal/provider"
)

// Recovery form actions. The three steps post to the same route; the action
// field picks the handler.
const (
	recoveryActionRequest = "request"
	recoveryActionVerify  = "verify"
	recoveryActionResend  = "resend"
	recoveryActionReset   = "reset"
)

// RecoveryShow renders whichever step the flow is on. The step is owned by
// the flow controller, never by the form.
func (c *Controller) RecoveryShow(ctx router.Context) error {
	return ctx.Render(c.Views.PasswordReset, router.ViewContext{
		"step":   int(c.Recovery.Step()),
		"email":  c.Recovery.Email(),
		"errors": nil,
	})
}

// RecoveryPayload is the combined recovery form.
type RecoveryPayload struct {
	Action          string `form:"action" json:"action"`
	Email           string `form:"email" json:"email"`
	Code            string `form:"code" json:"code"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (c *Controller) RecoveryPost(ctx router.Context) error {
	payload := new(RecoveryPayload)

	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("recovery parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(c.Views.PasswordReset, router.ViewContext{
			"step":   int(c.Recovery.Step()),
			"errors": map[string]string{"form": "Failed to parse form"},
		})
	}

	switch payload.Action {
	case recoveryActionVerify:
		return c.recoveryVerify(ctx, payload)
	case recoveryActionResend:
		return c.recoveryResend(ctx)
	case recoveryActionReset:
		return c.recoveryReset(ctx, payload)
	default:
		return c.recoveryRequest(ctx, payload)
	}
}

func (c *Controller) recoveryRequest(ctx router.Context, payload *RecoveryPayload) error {
	message, err := c.Recovery.RequestCode(ctx.Context(), payload.Email)
	if err != nil {
		return ctx.Render(c.Views.PasswordReset, router.ViewContext{
			"step":       int(c.Recovery.Step()),
			"record":     payload,
			"validation": flow.FormatValidationErrorToMap(err),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": message,
	}).Render(c.Views.PasswordReset, router.ViewContext{
		"step":  int(c.Recovery.Step()),
		"email": c.Recovery.Email(),
	})
}

func (c *Controller) recoveryResend(ctx router.Context) error {
	message, err := c.Recovery.Resend(ctx.Context())
	if err != nil {
		return ctx.Render(c.Views.PasswordReset, router.ViewContext{
			"step":   int(c.Recovery.Step()),
			"email":  c.Recovery.Email(),
			"errors": map[string]string{"resend": err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": message,
	}).Render(c.Views.PasswordReset, router.ViewContext{
		"step":  int(c.Recovery.Step()),
		"email": c.Recovery.Email(),
	})
}

func (c *Controller) recoveryVerify(ctx router.Context, payload *RecoveryPayload) error {
	if err := c.Recovery.VerifyCode(ctx.Context(), payload.Code); err != nil {
		message := "Could not verify the code, please try again"
		if provider.IsInvalidOTP(err) {
			message = "Invalid or expired code, request a new one"
		}

		return ctx.Render(c.Views.PasswordReset, router.ViewContext{
			"step":       int(c.Recovery.Step()),
			"email":      c.Recovery.Email(),
			"errors":     map[string]string{"code": message},
			"validation": flow.FormatValidationErrorToMap(err),
		})
	}

	// The advance to the reset step arrives through the store watcher;
	// rendering by Recovery.Step() picks it up on this response already in
	// the common case, or on the next poll otherwise.
	return ctx.Render(c.Views.PasswordReset, router.ViewContext{
		"step":  int(c.Recovery.Step()),
		"email": c.Recovery.Email(),
	})
}

func (c *Controller) recoveryReset(ctx router.Context, payload *RecoveryPayload) error {
	identity, err := c.Recovery.CompletePassword(ctx.Context(), payload.Password, payload.ConfirmPassword)
	if err != nil {
		return ctx.Render(c.Views.PasswordReset, router.ViewContext{
			"step":       int(c.Recovery.Step()),
			"email":      c.Recovery.Email(),
			"errors":     map[string]string{"password": err.Error()},
			"validation": flow.FormatValidationErrorToMap(err),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password updated",
	}).Redirect(identity.DashboardPath(), fiber.StatusSeeOther)
}
