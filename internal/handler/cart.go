package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/go-ecommerce-checkout/internal/dto"
	"github.com/flicky/go-ecommerce-checkout/internal/middleware"
	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

type CartHandler struct {
	svc CartService
}

func NewCartHandler(svc CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	h.respondCart(c, http.StatusOK)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	if err := h.svc.AddItem(c.Request.Context(), userID, req.ProductID, req.VariantID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusCreated)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.UpdateItem(c.Request.Context(), middleware.GetUserID(c), itemID, *req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *CartHandler) DeleteItem(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteItem(c.Request.Context(), middleware.GetUserID(c), itemID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	var req dto.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cart, err := h.svc.ApplyCoupon(c.Request.Context(), middleware.GetUserID(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) RemoveCoupon(c *gin.Context) {
	if err := h.svc.RemoveCoupon(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *CartHandler) respondCart(c *gin.Context, status int) {
	cart, err := h.svc.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, toCartResponse(cart))
}

func toCartResponse(cart *model.Cart) dto.CartResponse {
	items := make([]dto.CartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, dto.CartItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			Name:        item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice(),
			InStock:     item.Stock >= item.Quantity,
		})
	}

	resp := dto.CartResponse{
		ID:         cart.ID,
		Items:      items,
		TotalItems: cart.TotalItems(),
		TotalPrice: cart.TotalPrice(),
	}
	if cart.Coupon != nil {
		resp.CouponCode = cart.Coupon.Coupon.Code
		resp.DiscountAmount = cart.Coupon.DiscountAmount
	}
	resp.FinalPrice = resp.TotalPrice.Sub(resp.DiscountAmount)
	return resp
}
