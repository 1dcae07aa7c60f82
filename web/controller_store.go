package web

import (
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/wildshoppers/portal/catalog"
	"github.com/wildshoppers/portal/flow"
	"github.com/wildshoppers/portal/session"
)

// BrowseShow renders the catalog with the query-string filters applied
// client-side, so changing a filter never refetches.
func (c *Controller) BrowseShow(ctx router.Context) error {
	products, err := c.Catalog.ListProducts(ctx.Context())
	if err != nil {
		c.Logger.Error("browse list products: %v", err)
		return c.ErrorHandler(ctx, err)
	}

	categories, err := c.Catalog.ListCategories(ctx.Context())
	if err != nil {
		c.Logger.Error("browse list categories: %v", err)
	}

	filter := catalog.ProductFilter{
		Search:     ctx.Query("q", ""),
		Category:   ctx.Query("category", ""),
		PriceRange: ctx.Query("price", ""),
		Stock:      ctx.Query("stock", ""),
	}

	return ctx.Render(c.Views.Browse, router.ViewContext{
		"identity":   c.identity(),
		"products":   filter.Apply(products),
		"categories": categories,
		"filter":     filter,
	})
}

// ReservePayload is the reservation form posted from the browse screen.
type ReservePayload struct {
	ProductID int64  `form:"product_id" json:"product_id"`
	Quantity  int    `form:"quantity" json:"quantity"`
	Notes     string `form:"notes" json:"notes"`
}

// Validate will validate the payload
func (p ReservePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ProductID, validation.Required),
		validation.Field(&p.Quantity, validation.Min(1)),
	)
}

func (c *Controller) ReservePost(ctx router.Context) error {
	payload := new(ReservePayload)

	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("reserve parse payload: %v", err)
		return c.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Redirect(flow.PathBrowse, fiber.StatusSeeOther)
	}

	products, err := c.Catalog.ListProducts(ctx.Context())
	if err != nil {
		c.Logger.Error("reserve list products: %v", err)
		return c.ErrorHandler(ctx, err)
	}

	var product *catalog.Product
	for i := range products {
		if products[i].ID == payload.ProductID {
			product = &products[i]
			break
		}
	}

	if product == nil {
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "This item is no longer available",
		}).Redirect(flow.PathBrowse, fiber.StatusSeeOther)
	}

	order, err := c.Catalog.Reserve(ctx.Context(), *product, catalog.ReservationRequest{
		Quantity: payload.Quantity,
		Notes:    payload.Notes,
	})
	if err != nil {
		// API error messages are user-facing and shown verbatim.
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not reserve this item",
		}).Redirect(flow.PathBrowse, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": fmt.Sprintf("Reservation %s placed for %s, pending approval",
			order.OrderNumber, product.Name),
		"order_number": order.OrderNumber,
	}).Redirect(flow.PathReservations, fiber.StatusSeeOther)
}

// ReservationsShow lists the viewer's reservations; staff see everyone's.
func (c *Controller) ReservationsShow(ctx router.Context) error {
	identity := c.identity()

	userID := identity.ID
	if identity.Role == session.RoleStaff {
		userID = ""
	}

	orders, err := c.Catalog.ListOrders(ctx.Context(), userID)
	if err != nil {
		c.Logger.Error("reservations list: %v", err)
		return c.ErrorHandler(ctx, err)
	}

	filter := catalog.ReservationFilter{
		Status: ctx.Query("status", ""),
		Sort:   ctx.Query("sort", catalog.SortNewest),
	}

	return ctx.Render(c.Views.Reservations, router.ViewContext{
		"identity": identity,
		"orders":   filter.Apply(orders),
		"filter":   filter,
	})
}

// ReservationCancel withdraws a reservation that is still pending or
// approved. The final word on the transition belongs to the API.
func (c *Controller) ReservationCancel(ctx router.Context) error {
	orderID, err := strconv.ParseInt(ctx.Query("order_id", ""), 10, 64)
	if err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Invalid reservation",
		}).Redirect(flow.PathReservations, fiber.StatusSeeOther)
	}

	if _, err := c.Catalog.CancelOrder(ctx.Context(), orderID); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not cancel this reservation",
		}).Redirect(flow.PathReservations, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Reservation cancelled",
	}).Redirect(flow.PathReservations, fiber.StatusSeeOther)
}

// StudentDashboard renders the buyer landing page with recent activity.
func (c *Controller) StudentDashboard(ctx router.Context) error {
	identity := c.identity()

	orders, err := c.Catalog.ListOrders(ctx.Context(), identity.ID)
	if err != nil {
		c.Logger.Error("student dashboard orders: %v", err)
		orders = nil
	}

	recent := catalog.ReservationFilter{Sort: catalog.SortNewest}.Apply(orders)
	if len(recent) > 5 {
		recent = recent[:5]
	}

	return ctx.Render(c.Views.StudentDashboard, router.ViewContext{
		"identity": identity,
		"orders":   recent,
		"stats":    catalog.Summarize(orders),
	})
}

// AdminDashboard renders the staff landing page with order aggregates.
func (c *Controller) AdminDashboard(ctx router.Context) error {
	identity := c.identity()

	orders, err := c.Catalog.ListOrders(ctx.Context(), "")
	if err != nil {
		c.Logger.Error("admin dashboard orders: %v", err)
		orders = nil
	}

	products, err := c.Catalog.ListProducts(ctx.Context())
	if err != nil {
		c.Logger.Error("admin dashboard products: %v", err)
	}

	pending := catalog.ReservationFilter{
		Status: catalog.StatusPending,
		Sort:   catalog.SortOldest,
	}.Apply(orders)

	return ctx.Render(c.Views.AdminDashboard, router.ViewContext{
		"identity":      identity,
		"stats":         catalog.Summarize(orders),
		"pending":       pending,
		"product_count": len(products),
	})
}
