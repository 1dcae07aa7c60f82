package web

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/wildshoppers/portal/flow"
	"github.com/wildshoppers/portal/provider"
	"github.com/wildshoppers/portal/session"
)

func (c *Controller) LoginShow(ctx router.Context) error {
	return ctx.Render(c.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginPayload is the sign-in form.
type LoginPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(
			&p.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&p.Password,
			validation.Required,
		),
	)
}

func (c *Controller) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("login parse payload: %v", err)
		return c.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(c.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": flow.FormatValidationErrorToMap(err),
		})
	}

	if c.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	sess, err := c.Provider.SignInWithPassword(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		errs["authentication"] = "Invalid email or password"
		return ctx.Render(c.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	identity := sess.Identity()

	// Locally edited contact details win over the provider metadata copy.
	if record, perr := c.Profiles.GetByID(ctx.Context(), identity.ID); perr == nil && record != nil {
		identity = record.MergeIdentity(*identity)
	}

	if err := c.Store.SetIdentity(ctx.Context(), identity); err != nil {
		c.Logger.Error("login set identity: %v", err)
		return c.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(identity.DashboardPath(), router.StatusSeeOther)
}

func (c *Controller) LogOut(ctx router.Context) error {
	if err := c.Provider.SignOut(ctx.Context()); err != nil {
		c.Logger.Error("sign-out: %v", err)
	}
	return ctx.Redirect(flow.PathLogin, router.StatusSeeOther)
}

func (c *Controller) RegistrationShow(ctx router.Context) error {
	return ctx.Render(c.Views.Signup, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationPayload{UserType: string(session.RoleStudent)},
	})
}

// RegistrationPayload is the sign-up form. The student and staff tabs post
// the same fields; only the campus id column differs.
type RegistrationPayload struct {
	FullName        string `form:"full_name" json:"full_name"`
	Email           string `form:"email" json:"email"`
	UserType        string `form:"user_type" json:"user_type"`
	StudentID       string `form:"student_id" json:"student_id"`
	StaffID         string `form:"staff_id" json:"staff_id"`
	PhoneNumber     string `form:"phone_number" json:"phone_number"`
	Address         string `form:"address" json:"address"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`

	Domain string `form:"-" json:"-"`
	Region string `form:"-" json:"-"`
}

// Validate will validate the payload
func (p RegistrationPayload) Validate() error {
	fields := []*validation.FieldRules{
		validation.Field(&p.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Email,
			validation.Required,
			is.Email,
			flow.InstitutionalEmail(p.Domain),
		),
		validation.Field(&p.UserType,
			validation.Required,
			validation.In(string(session.RoleStudent), string(session.RoleStaff)),
		),
		validation.Field(&p.PhoneNumber, flow.ValidPhoneNumber(p.Region)),
		validation.Field(&p.Password,
			validation.Required,
			validation.Length(flow.MinPasswordLength, 100),
		),
		validation.Field(&p.ConfirmPassword,
			validation.Required,
			flow.StringEquals(p.Password, "passwords do not match"),
		),
	}

	if p.UserType == string(session.RoleStaff) {
		fields = append(fields, validation.Field(&p.StaffID, validation.Required))
	} else {
		fields = append(fields, validation.Field(&p.StudentID, validation.Required))
	}

	return validation.ValidateStruct(&p, fields...)
}

func (c *Controller) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationPayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		c.Logger.Error("register parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(c.Views.Signup, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	payload.Domain = c.EmailDomain
	payload.Region = c.PhoneRegion

	if err := payload.Validate(); err != nil {
		errs := flow.FormatValidationErrorToMap(err)
		c.Logger.Error("register validate payload: %v", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(c.Views.Signup, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	meta := provider.Metadata{
		FullName:    payload.FullName,
		UserType:    payload.UserType,
		StudentID:   payload.StudentID,
		StaffID:     payload.StaffID,
		PhoneNumber: payload.PhoneNumber,
		Address:     payload.Address,
	}

	sess, err := c.Provider.SignUp(ctx.Context(), payload.Email, payload.Password, meta)
	if err != nil {
		message := "Registration failed, please try again"
		if provider.IsAlreadyRegistered(err) {
			message = "This email is already registered, please log in instead"
		}
		c.Logger.Error("register sign-up: %v", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  message,
			"system_message": "Error creating account",
		}).Render(c.Views.Signup, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"registration": message},
		})
	}

	identity := sess.Identity()
	if identity != nil {
		if _, err := c.Profiles.Register(ctx.Context(), *identity); err != nil {
			c.Logger.Error("register mirror profile: %v", err)
		}
		if err := c.Store.SetIdentity(ctx.Context(), identity); err != nil {
			var richErr *errors.Error
			if errors.As(err, &richErr) && richErr.Category == errors.CategoryConflict {
				// Mid-recovery sign-up cannot land; send them through login.
				return ctx.Redirect(flow.PathLogin, router.StatusSeeOther)
			}
			c.Logger.Error("register set identity: %v", err)
		}
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "Account created",
		}).Redirect(identity.DashboardPath(), fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account created, please log in",
	}).Redirect(flow.PathLogin, fiber.StatusSeeOther)
}
