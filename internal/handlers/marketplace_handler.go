package handlers

import (
	"context"
	"net/http"

	"ticket-resale/internal/services"
	"ticket-resale/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Marketplace is the part of services.MarketplaceService the HTTP layer
// calls.
type Marketplace interface {
	CreateListing(ctx context.Context, in services.CreateListingInput, caller models.Identity) (*models.Listing, error)
	GetListing(ctx context.Context, ticketRef string, expand []models.Relation) (*models.Listing, error)
	GetListingByID(ctx context.Context, id string, expand []models.Relation) (*models.Listing, error)
	UpdateListing(ctx context.Context, id string, in services.UpdateListingInput, caller models.Identity) (*models.Listing, error)
	DeleteListing(ctx context.Context, id string, caller models.Identity) (*models.Listing, error)
	BuyListing(ctx context.Context, id string, caller models.Identity, opts services.BuyOptions) (*models.Transaction, error)
	ListTransactions(ctx context.Context, q models.TransactionQuery) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, id string, expand []models.Relation) (*models.Transaction, error)
}

const IdempotencyKeyHeader = "Idempotency-Key"

type response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type MarketplaceHandler struct {
	marketplace Marketplace
}

func NewMarketplaceHandler(m Marketplace) *MarketplaceHandler {
	return &MarketplaceHandler{marketplace: m}
}

// CreateListing - POST /tickets/{ticketId}/listings
func (h *MarketplaceHandler) CreateListing(e *core.RequestEvent) error {
	caller, err := identityFrom(e)
	if err != nil {
		return err
	}

	var req listingRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := req.validateCreate(); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	listing, err := h.marketplace.CreateListing(e.Request.Context(), services.CreateListingInput{
		TicketRef: e.Request.PathValue("ticketId"),
		Price:     *req.Price,
	}, caller)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, response{Message: "LISTING_CREATED", Data: listing})
}

// GetListing - GET /tickets/{ticketId}/listings
func (h *MarketplaceHandler) GetListing(e *core.RequestEvent) error {
	expand, err := models.ParseRelations(e.Request.URL.Query().Get("expand"), models.ListingRelations)
	if err != nil {
		return apis.NewBadRequestError("Invalid expand", err)
	}

	listing, err := h.marketplace.GetListing(e.Request.Context(), e.Request.PathValue("ticketId"), expand)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, response{Message: "LISTINGS_FETCHED", Data: listing})
}

// GetListingByID - GET /listings/{id}
func (h *MarketplaceHandler) GetListingByID(e *core.RequestEvent) error {
	expand, err := models.ParseRelations(e.Request.URL.Query().Get("expand"), models.ListingRelations)
	if err != nil {
		return apis.NewBadRequestError("Invalid expand", err)
	}

	listing, err := h.marketplace.GetListingByID(e.Request.Context(), e.Request.PathValue("id"), expand)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, response{Message: "LISTING_FETCHED", Data: listing})
}

// UpdateListing - PATCH /listings/{id}
func (h *MarketplaceHandler) UpdateListing(e *core.RequestEvent) error {
	caller, err := identityFrom(e)
	if err != nil {
		return err
	}

	var req listingRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := req.validateUpdate(); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	listing, err := h.marketplace.UpdateListing(e.Request.Context(), e.Request.PathValue("id"), services.UpdateListingInput{
		Price: req.Price,
	}, caller)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, response{Message: "LISTING_UPDATED", Data: listing})
}

// DeleteListing - DELETE /listings/{id}
func (h *MarketplaceHandler) DeleteListing(e *core.RequestEvent) error {
	caller, err := identityFrom(e)
	if err != nil {
		return err
	}

	listing, err := h.marketplace.DeleteListing(e.Request.Context(), e.Request.PathValue("id"), caller)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, response{Message: "LISTING_DELETED", Data: listing})
}

// BuyListing - POST /listings/{id}/buy
func (h *MarketplaceHandler) BuyListing(e *core.RequestEvent) error {
	caller, err := identityFrom(e)
	if err != nil {
		return err
	}

	key := e.Request.Header.Get(IdempotencyKeyHeader)
	if err := validateIdempotencyKey(key); err != nil {
		return apis.NewBadRequestError("Invalid "+IdempotencyKeyHeader+" header", err)
	}

	txn, err := h.marketplace.BuyListing(e.Request.Context(), e.Request.PathValue("id"), caller, services.BuyOptions{
		IdempotencyKey: key,
	})
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, response{Message: "LISTING_SOLD", Data: txn})
}

// ListTransactions - GET /transactions
func (h *MarketplaceHandler) ListTransactions(e *core.RequestEvent) error {
	q, err := parseTransactionQuery(e.Request.URL.Query())
	if err != nil {
		return apis.NewBadRequestError("Invalid query", err)
	}

	txns, err := h.marketplace.ListTransactions(e.Request.Context(), q)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, response{Message: "TRANSACTIONS_FETCHED", Data: txns})
}

// GetTransaction - GET /transactions/{id}
func (h *MarketplaceHandler) GetTransaction(e *core.RequestEvent) error {
	expand, err := models.ParseRelations(e.Request.URL.Query().Get("expand"), models.TransactionRelations)
	if err != nil {
		return apis.NewBadRequestError("Invalid expand", err)
	}

	txn, err := h.marketplace.GetTransaction(e.Request.Context(), e.Request.PathValue("id"), expand)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, response{Message: "TRANSACTION_FETCHED", Data: txn})
}
