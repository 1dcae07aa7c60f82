package web

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/wildshoppers/portal/flow"
	"github.com/wildshoppers/portal/profile"
)

// ProfileShow renders the account screen. Role and campus id are shown
// read-only; only contact columns are editable.
func (c *Controller) ProfileShow(ctx router.Context) error {
	identity := c.identity()

	record, err := c.Profiles.GetByID(ctx.Context(), identity.ID)
	if err != nil {
		c.Logger.Error("profile load: %v", err)
	}
	if record != nil {
		identity = record.MergeIdentity(*identity)
	}

	return ctx.Render(c.Views.Profile, router.ViewContext{
		"identity": identity,
		"errors":   nil,
	})
}

// ProfileUpdatePayload is the editable slice of the account form.
type ProfileUpdatePayload struct {
	FullName    string `form:"full_name" json:"full_name"`
	PhoneNumber string `form:"phone_number" json:"phone_number"`
	Address     string `form:"address" json:"address"`

	Region string `form:"-" json:"-"`
}

// Validate will validate the payload
func (p ProfileUpdatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.PhoneNumber, flow.ValidPhoneNumber(p.Region)),
		validation.Field(&p.Address, validation.Length(0, 500)),
	)
}

func (c *Controller) ProfilePost(ctx router.Context) error {
	payload := new(ProfileUpdatePayload)

	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("profile parse payload: %v", err)
		return c.ErrorHandler(ctx, err)
	}

	payload.Region = c.PhoneRegion

	identity := c.identity()

	if err := payload.Validate(); err != nil {
		return ctx.Render(c.Views.Profile, router.ViewContext{
			"identity":   identity,
			"record":     payload,
			"validation": flow.FormatValidationErrorToMap(err),
		})
	}

	record, err := c.Profiles.UpdateContact(ctx.Context(), identity.ID, profile.ContactUpdate{
		FullName:    payload.FullName,
		PhoneNumber: payload.PhoneNumber,
		Address:     payload.Address,
	})
	if err != nil {
		c.Logger.Error("profile update: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not save your profile",
		}).Render(c.Views.Profile, router.ViewContext{
			"identity": identity,
			"record":   payload,
		})
	}

	// Refresh the in-memory session so every screen sees the edit at once.
	if record != nil {
		if err := c.Store.SetIdentity(ctx.Context(), record.MergeIdentity(*identity)); err != nil {
			c.Logger.Error("profile refresh identity: %v", err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Profile updated",
	}).Redirect(flow.PathProfile, fiber.StatusSeeOther)
}
