package handlers

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"

	"ticket-resale/internal/status"
	"ticket-resale/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type listingRequest struct {
	Price *decimal.Decimal `json:"price"`
}

var errPriceNotPositive = validation.NewError("validation_price_not_positive", "must be greater than zero")

func positivePrice(value any) error {
	p, ok := value.(*decimal.Decimal)
	if !ok || p == nil {
		return nil
	}
	if !p.IsPositive() {
		return errPriceNotPositive
	}
	return nil
}

func (r *listingRequest) validateCreate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Price, validation.NotNil, validation.By(positivePrice)),
	)
}

// validateUpdate is the same check today; price is the only mutable field.
func (r *listingRequest) validateUpdate() error {
	return r.validateCreate()
}

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]+$`)

func validateIdempotencyKey(key string) error {
	return validation.Validate(key,
		validation.Length(0, 128),
		validation.Match(idempotencyKeyPattern),
	)
}

func parseInt(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validation.Errors{name: validation.NewError("validation_not_integer", "must be an integer")}
	}
	return n, nil
}

// parseTransactionQuery reads limit, page, sort, ticket, seller, buyer and
// expand. Ranges are checked by the marketplace service.
func parseTransactionQuery(v url.Values) (models.TransactionQuery, error) {
	var q models.TransactionQuery
	var err error

	if q.Page.Limit, err = parseInt(v, "limit"); err != nil {
		return q, err
	}
	if q.Page.Page, err = parseInt(v, "page"); err != nil {
		return q, err
	}
	if q.Sort, err = models.ParseSort(v.Get("sort")); err != nil {
		return q, err
	}
	if q.Expand, err = models.ParseRelations(v.Get("expand"), models.TransactionRelations); err != nil {
		return q, err
	}

	q.Filter = models.TransactionFilter{
		TicketRef: v.Get("ticket"),
		SellerID:  v.Get("seller"),
		BuyerID:   v.Get("buyer"),
	}
	return q, nil
}

// identityFrom returns the authenticated caller. Superusers and users with
// the ADMIN role act as admins.
func identityFrom(e *core.RequestEvent) (models.Identity, error) {
	if e.Auth == nil {
		return models.Identity{}, apis.NewUnauthorizedError("Authentication required", nil)
	}

	role := models.RoleUser
	if e.Auth.IsSuperuser() || models.Role(e.Auth.GetString("role")) == models.RoleAdmin {
		role = models.RoleAdmin
	}
	return models.Identity{ID: e.Auth.Id, Role: role}, nil
}

const internalErrorMessage = "Something went wrong. Please try again."

// toAPIError maps marketplace errors to HTTP errors. Internal details never
// reach the client.
func toAPIError(err error) error {
	var se *status.Error
	message := internalErrorMessage
	if errors.As(err, &se) {
		message = se.Message
	}

	switch status.KindOf(err) {
	case status.KindNotFound:
		return apis.NewNotFoundError(message, nil)
	case status.KindConflict:
		return apis.NewApiError(409, message, nil)
	case status.KindInvalidInput:
		return apis.NewBadRequestError(message, nil)
	default:
		return apis.NewInternalServerError(internalErrorMessage, nil)
	}
}
