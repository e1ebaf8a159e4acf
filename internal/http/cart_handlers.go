package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary Get own cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.Cart
// @Failure 404 {object} errorResponse
// @Router /cart [get]
func (s *Server) getCart(c *gin.Context) {
	cart, err := s.carts.Get(c, identity(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Get one cart entry
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Param productId path string true "Product ID"
// @Success 200 {object} domain.CartItem
// @Failure 404 {object} errorResponse
// @Router /cart/{productId} [get]
func (s *Server) getCartItem(c *gin.Context) {
	item, err := s.carts.GetItem(c, identity(c).UserID, c.Param("productId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type addToCartReq struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// @Summary Add to cart
// @Description Merges into an existing entry for the same product.
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body addToCartReq true "Item"
// @Success 200 {object} domain.Cart
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /cart [post]
func (s *Server) addToCart(c *gin.Context) {
	var req addToCartReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	cart, err := s.carts.Add(c, identity(c).UserID, req.ProductID, req.Quantity)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Set cart entry quantity
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param productId path string true "Product ID"
// @Param input body quantityReq true "New quantity"
// @Success 200 {object} domain.Cart
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /cart/{productId} [put]
func (s *Server) setCartItem(c *gin.Context) {
	var req quantityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	cart, err := s.carts.SetQuantity(c, identity(c).UserID, c.Param("productId"), req.Quantity)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Remove cart entry
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Param productId path string true "Product ID"
// @Success 200 {object} domain.Cart
// @Failure 404 {object} errorResponse
// @Router /cart/{productId} [delete]
func (s *Server) removeCartItem(c *gin.Context) {
	cart, err := s.carts.Remove(c, identity(c).UserID, c.Param("productId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Clear cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.Cart
// @Failure 404 {object} errorResponse
// @Router /cart [delete]
func (s *Server) clearCart(c *gin.Context) {
	cart, err := s.carts.Clear(c, identity(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Checkout cart
// @Description Places an order for the whole cart; the cart is emptied only on success.
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 201 {object} domain.Order
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /cart/checkout [post]
func (s *Server) checkout(c *gin.Context) {
	o, err := s.carts.Checkout(c, identity(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}
