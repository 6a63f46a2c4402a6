package handlers

import (
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// RegisterRoutes mounts the marketplace API under /api/v1. Every route
// requires an authenticated record. purchaseGuards run before the buy
// handler only.
func (h *MarketplaceHandler) RegisterRoutes(r *router.Router[*core.RequestEvent], purchaseGuards ...func(*core.RequestEvent) error) {
	v1 := r.Group("/api/v1")
	v1.Bind(apis.RequireAuth())

	v1.POST("/tickets/{ticketId}/listings", h.CreateListing)
	v1.GET("/tickets/{ticketId}/listings", h.GetListing)

	v1.GET("/listings/{id}", h.GetListingByID)
	v1.PATCH("/listings/{id}", h.UpdateListing)
	v1.DELETE("/listings/{id}", h.DeleteListing)
	buy := v1.POST("/listings/{id}/buy", h.BuyListing)
	for _, guard := range purchaseGuards {
		buy.BindFunc(guard)
	}

	v1.GET("/transactions", h.ListTransactions)
	v1.GET("/transactions/{id}", h.GetTransaction)
}
