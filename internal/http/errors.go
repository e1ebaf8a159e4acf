package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

type errorResponse struct {
	Error string            `json:"error"`
	Code  string            `json:"code"`
	Items []domain.Shortage `json:"items,omitempty"`
}

func mapError(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}
	var oos *domain.OutOfStockError

	switch {
	case errors.As(err, &oos):
		resp.Code = "OUT_OF_STOCK"
		resp.Items = oos.Items
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrMalformedRequest):
		resp.Code = "MALFORMED_REQUEST"
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrInvalidQuantity):
		resp.Code = "INVALID_QUANTITY"
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrForbidden):
		resp.Code = "FORBIDDEN"
		return http.StatusForbidden, resp
	case errors.Is(err, domain.ErrProductNotFound):
		resp.Code = "PRODUCT_NOT_FOUND"
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrOrderNotFound):
		resp.Code = "ORDER_NOT_FOUND"
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrCartNotFound):
		resp.Code = "CART_NOT_FOUND"
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrItemNotFound):
		resp.Code = "ITEM_NOT_FOUND"
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrInvalidTransition):
		resp.Code = "INVALID_TRANSITION"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrConcurrencyConflict):
		resp.Code = "CONCURRENCY_CONFLICT"
		return http.StatusConflict, resp
	default:
		// internals stay in the log
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"}
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, resp := mapError(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Code: "MALFORMED_REQUEST"})
}
