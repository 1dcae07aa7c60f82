package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wildshoppers/portal/logging"
)

const requestTimeout = 15 * time.Second

const textCodeOutOfStock = "OUT_OF_STOCK"

// ErrOutOfStock rejects a reservation before it ever reaches the network.
var ErrOutOfStock = goerrors.New("this item is out of stock", goerrors.CategoryConflict).
	WithTextCode(textCodeOutOfStock).
	WithCode(goerrors.CodeConflict)

// Product is one merchandise listing.
type Product struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         string `json:"price"`
	CategoryName  string `json:"category_name"`
	IsInStock     bool   `json:"is_in_stock"`
	StockQuantity int    `json:"stock_quantity"`
	ImageURL      string `json:"image_url,omitempty"`
}

// PriceValue parses the decimal-string price the API serves. Unparseable
// prices count as zero rather than failing a whole listing page.
func (p Product) PriceValue() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Price), 64)
	if err != nil {
		return 0
	}
	return v
}

// Category is a merchandise grouping.
type Category struct {
	Name string `json:"name"`
}

// Order statuses as the API reports them. Released marks a reservation the
// store has handed over; there is no further transition after it.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusReleased  = "released"
	StatusCancelled = "cancelled"
)

// Order types as the API reports them. The storefront only ever creates
// reservations; walk-in orders share the same table on the backend.
const (
	OrderTypeReservation = "reservation"
	OrderTypeWalkIn      = "order"
)

// OrderItem is one line of a reservation.
type OrderItem struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

// Order is a reservation as the API reports it.
type Order struct {
	ID          int64       `json:"id"`
	OrderNumber string      `json:"order_number"`
	OrderType   string      `json:"order_type"`
	Status      string      `json:"status"`
	TotalAmount string      `json:"total_amount"`
	CreatedAt   time.Time   `json:"created_at"`
	Notes       string      `json:"notes,omitempty"`
	Items       []OrderItem `json:"items"`
}

// TotalValue parses the order total the same way Product.PriceValue does.
func (o Order) TotalValue() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(o.TotalAmount), 64)
	if err != nil {
		return 0
	}
	return v
}

// CanCancel reports whether the buyer may still withdraw the reservation.
// Released and cancelled orders are final.
func (o Order) CanCancel() bool {
	return o.Status == StatusPending || o.Status == StatusApproved
}

// ReservationRequest is the payload for creating a reservation. The API
// derives the buyer from the bearer token; nothing else goes on the wire.
type ReservationRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes"`
}

// TokenSource supplies the bearer token for authenticated calls. Empty
// string means unauthenticated.
type TokenSource func() string

// Client talks to the merchandise REST API.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	logger  logging.Logger
}

// ClientOption customizes client construction.
type ClientOption func(*Client)

// WithTokenSource attaches the bearer token supplier.
func WithTokenSource(src TokenSource) ClientOption {
	return func(c *Client) {
		c.token = src
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds an API client rooted at baseURL, e.g.
// http://127.0.0.1:8000/api.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, goerrors.New("catalog API base URL is required", goerrors.CategoryBadInput)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logging.Default{Name: "catalog"},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ListProducts fetches the full product catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.do(ctx, http.MethodGet, "/products/", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// ListCategories fetches the category list.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.do(ctx, http.MethodGet, "/products/categories/", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// Reserve creates a reservation after checking stock locally. The API makes
// the final call on availability; this guard just spares the round trip for
// listings already showing as sold out.
func (c *Client) Reserve(ctx context.Context, product Product, req ReservationRequest) (*Order, error) {
	if !product.IsInStock || product.StockQuantity <= 0 {
		return nil, ErrOutOfStock
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.Notes == "" {
		req.Notes = "Reservation for " + product.Name
	}
	req.ProductID = product.ID

	return c.CreateReservation(ctx, req)
}

// CreateReservation posts the reservation to the API. The response carries
// the assigned order number the buyer is shown.
func (c *Client) CreateReservation(ctx context.Context, req ReservationRequest) (*Order, error) {
	order := &Order{}
	if err := c.do(ctx, http.MethodPost, "/orders/create-reservation/", req, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders fetches reservations, dropping walk-in orders that share the
// endpoint. With a userID only that buyer's orders come back; staff pass an
// empty id for the full set.
func (c *Client) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	path := "/orders/"
	if userID != "" {
		path += "?user_id=" + userID
	}

	var fetched []Order
	if err := c.do(ctx, http.MethodGet, path, nil, &fetched); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(fetched))
	for _, o := range fetched {
		if o.OrderType == OrderTypeReservation {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// CancelOrder moves a reservation to cancelled. The API rejects the
// transition for orders past the cancellable statuses.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) (*Order, error) {
	order := &Order{}

	path := fmt.Sprintf("/orders/%d/cancel/", orderID)
	if err := c.do(ctx, http.MethodPatch, path, nil, order); err != nil {
		return nil, err
	}
	return order, nil
}

// apiError is the backend's error envelope; its message is shown to the
// user verbatim.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build API request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "merchandise API unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read API response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := apiError{}
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return goerrors.New(apiErr.Error, goerrors.CategoryOperation).
				WithMetadata(map[string]any{"status": resp.StatusCode})
		}
		return goerrors.New(fmt.Sprintf("merchandise API returned status %d", resp.StatusCode), goerrors.CategoryOperation)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode API response")
		}
	}

	return nil
}
