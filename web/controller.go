package web

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/wildshoppers/portal/catalog"
	"github.com/wildshoppers/portal/flow"
	"github.com/wildshoppers/portal/logging"
	"github.com/wildshoppers/portal/profile"
	"github.com/wildshoppers/portal/provider"
	"github.com/wildshoppers/portal/session"
)

// Views maps screens to template names.
type Views struct {
	Login            string
	Signup           string
	PasswordReset    string
	StudentDashboard string
	AdminDashboard   string
	Browse           string
	Reservations     string
	Profile          string
	Loading          string
}

func defaultViews() *Views {
	return &Views{
		Login:            "login",
		Signup:           "signup",
		PasswordReset:    "password_reset",
		StudentDashboard: "student_dashboard",
		AdminDashboard:   "admin_dashboard",
		Browse:           "browse",
		Reservations:     "reservations",
		Profile:          "profile",
		Loading:          "loading",
	}
}

// Controller renders the storefront screens. Every route goes through the
// session guard before its handler runs.
type Controller struct {
	Debug    bool
	Logger   logging.Logger
	Views    *Views
	Store    *session.Store
	Recovery *flow.Recovery
	Provider *provider.Client
	Catalog  *catalog.Client
	Profiles *profile.Profiles

	// EmailDomain is the campus domain registrations must use.
	EmailDomain string
	// PhoneRegion is the region phone numbers are validated against.
	PhoneRegion string

	ErrorHandler router.ErrorHandler
}

// ControllerOption configures the controller.
type ControllerOption func(*Controller) *Controller

// WithLogger overrides the default logger.
func WithLogger(logger logging.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithDebug enables request payload dumps.
func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// NewController builds the controller. Store, Recovery, Provider, Catalog
// and Profiles are required.
func NewController(
	store *session.Store,
	recovery *flow.Recovery,
	prov *provider.Client,
	cat *catalog.Client,
	profiles *profile.Profiles,
	emailDomain, phoneRegion string,
	opts ...ControllerOption,
) *Controller {
	c := &Controller{
		Logger:       logging.Default{Name: "web"},
		Views:        defaultViews(),
		Store:        store,
		Recovery:     recovery,
		Provider:     prov,
		Catalog:      cat,
		Profiles:     profiles,
		EmailDomain:  emailDomain,
		PhoneRegion:  phoneRegion,
		ErrorHandler: defaultErrHandler,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterRoutes mounts every screen with its guard.
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	app.Get(flow.PathRoot, c.Guarded(flow.PathRoot, c.RootShow)).SetName("root.get")

	app.Get(flow.PathLogin, c.Guarded(flow.PathLogin, c.LoginShow)).SetName("sign-in.get")
	app.Post(flow.PathLogin, c.Guarded(flow.PathLogin, c.LoginPost)).SetName("sign-in.post")

	app.Get(flow.PathSignup, c.Guarded(flow.PathSignup, c.RegistrationShow)).SetName("register.get")
	app.Post(flow.PathSignup, c.Guarded(flow.PathSignup, c.RegistrationCreate)).SetName("register.post")

	app.Get("/logout", c.LogOut).SetName("sign-out.get")

	app.Get(flow.PathForgotPassword, c.Guarded(flow.PathForgotPassword, c.RecoveryShow)).
		SetName("pwd-reset.get")
	app.Post(flow.PathForgotPassword, c.Guarded(flow.PathForgotPassword, c.RecoveryPost)).
		SetName("pwd-reset.post")

	app.Get(flow.PathStudentDashboard, c.Guarded(flow.PathStudentDashboard, c.StudentDashboard)).
		SetName("dashboard-student.get")
	app.Get(flow.PathAdminDashboard, c.Guarded(flow.PathAdminDashboard, c.AdminDashboard)).
		SetName("dashboard-admin.get")

	app.Get(flow.PathBrowse, c.Guarded(flow.PathBrowse, c.BrowseShow)).SetName("browse.get")
	app.Post(flow.PathBrowse, c.Guarded(flow.PathBrowse, c.ReservePost)).SetName("browse.reserve")

	app.Get(flow.PathReservations, c.Guarded(flow.PathReservations, c.ReservationsShow)).
		SetName("reservations.get")
	app.Post(flow.PathReservations, c.Guarded(flow.PathReservations, c.ReservationCancel)).
		SetName("reservations.cancel")

	app.Get(flow.PathProfile, c.Guarded(flow.PathProfile, c.ProfileShow)).SetName("profile.get")
	app.Post(flow.PathProfile, c.Guarded(flow.PathProfile, c.ProfilePost)).SetName("profile.post")
}

// Guarded evaluates the route guard for path before running handler.
func (c *Controller) Guarded(path string, handler router.HandlerFunc) router.HandlerFunc {
	return func(ctx router.Context) error {
		verdict := flow.Evaluate(path, c.Store.Snapshot())
		switch verdict.Action {
		case flow.ActionRedirect:
			return ctx.Redirect(verdict.Target, router.StatusSeeOther)
		case flow.ActionWait:
			return ctx.Render(c.Views.Loading, router.ViewContext{})
		}
		return handler(ctx)
	}
}

// RootShow only runs for unauthenticated visitors; the guard bounces
// signed-in users to their dashboard before it is reached.
func (c *Controller) RootShow(ctx router.Context) error {
	return ctx.Redirect(flow.PathLogin, router.StatusSeeOther)
}

// identity returns the current identity, which the guard guarantees for
// protected routes.
func (c *Controller) identity() *session.Identity {
	return c.Store.Snapshot().Identity
}

func defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	return ctx.Status(richErr.Code).Render("errors/500", router.ViewContext{
		"error": richErr,
	})
}
