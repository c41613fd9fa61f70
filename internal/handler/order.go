package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/go-ecommerce-checkout/internal/dto"
	"github.com/flicky/go-ecommerce-checkout/internal/middleware"
	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/service"
)

type OrderHandler struct {
	checkout CheckoutService
	orders   OrderService
}

func NewOrderHandler(checkout CheckoutService, orders OrderService) *OrderHandler {
	return &OrderHandler{checkout: checkout, orders: orders}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.checkout.PlaceOrder(c.Request.Context(), middleware.GetUserID(c), service.OrderInput{
		Shipping: req.Shipping(),
		Billing:  req.Billing(),
		Notes:    req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateOrderResponse{
		OrderID:      res.Order.ID,
		OrderNumber:  res.Order.OrderNumber,
		ClientSecret: res.ClientSecret,
		Amount:       res.Order.TotalAmount,
	})
}

func (h *OrderHandler) ConfirmPayment(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.checkout.ConfirmPayment(c.Request.Context(), middleware.GetUserID(c), orderID, req.PaymentIntentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ConfirmPaymentResponse{Message: "Payment confirmed", Order: toOrderResponse(order)})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListByUserID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Total: len(items)})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetByID(c.Request.Context(), orderID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, middleware.GetUserID(c), service.StatusUpdate{
		Status:         req.Status,
		Notes:          req.Notes,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func toAddressResponse(s model.ShippingInfo) dto.AddressResponse {
	return dto.AddressResponse{
		Address: s.Address, City: s.City, State: s.State,
		PostalCode: s.PostalCode, Country: s.Country, Phone: s.Phone,
	}
}

func toOrderResponse(order *model.Order) dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, dto.OrderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			ProductSKU:  item.ProductSKU,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}
	var history []dto.StatusHistoryResponse
	for _, h := range order.History {
		history = append(history, dto.StatusHistoryResponse{
			Status: h.Status, Notes: h.Notes, ChangedBy: h.ChangedBy, CreatedAt: h.CreatedAt,
		})
	}

	return dto.OrderResponse{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         order.Status,
		IsPaid:         order.IsPaid,
		PaymentMethod:  order.PaymentMethod,
		Subtotal:       order.Subtotal,
		TaxAmount:      order.TaxAmount,
		ShippingCost:   order.ShippingCost,
		DiscountAmount: order.DiscountAmount,
		TotalAmount:    order.TotalAmount,
		CouponCode:     order.CouponCode,
		TrackingNumber: order.TrackingNumber,
		Shipping:       toAddressResponse(order.Shipping),
		Billing:        toAddressResponse(order.Billing),
		CustomerName:   order.CustomerName(),
		CustomerEmail:  order.CustomerEmail,
		Notes:          order.Notes,
		CanCancel:      order.IsCancellable() && !order.IsPaid,
		Items:          items,
		History:        history,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
		ShippedAt:      order.ShippedAt,
		DeliveredAt:    order.DeliveredAt,
	}
}
