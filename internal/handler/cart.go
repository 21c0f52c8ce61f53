package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oakmarket/marketplace-api/internal/dto"
	"github.com/oakmarket/marketplace-api/internal/middleware"
	"github.com/oakmarket/marketplace-api/internal/service"
)

type CartHandler struct {
	svc *service.CartService
}

func NewCartHandler(svc *service.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) Get(c *gin.Context) {
	cart, err := h.svc.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		internalError(c)
		return
	}
	respondData(c, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, service.ErrProductNotFound):
			respondError(c, http.StatusNotFound, "product not found")
		case errors.Is(err, service.ErrInsufficientStock):
			respondError(c, http.StatusConflict, "insufficient stock")
		default:
			internalError(c)
		}
		return
	}
	respondMessage(c, http.StatusCreated, "item added")
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid product id")
		return
	}
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.UpdateItem(c.Request.Context(), middleware.GetUserID(c), productID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, service.ErrProductNotFound):
			respondError(c, http.StatusNotFound, "product not found")
		case errors.Is(err, service.ErrCartItemNotFound):
			respondError(c, http.StatusNotFound, "cart item not found")
		case errors.Is(err, service.ErrInsufficientStock):
			respondError(c, http.StatusConflict, "insufficient stock")
		default:
			internalError(c)
		}
		return
	}
	respondMessage(c, http.StatusOK, "item updated")
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid product id")
		return
	}
	if err := h.svc.RemoveItem(c.Request.Context(), middleware.GetUserID(c), productID); err != nil {
		if errors.Is(err, service.ErrCartItemNotFound) {
			respondError(c, http.StatusNotFound, "cart item not found")
			return
		}
		internalError(c)
		return
	}
	respondMessage(c, http.StatusOK, "item removed")
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		internalError(c)
		return
	}
	respondMessage(c, http.StatusOK, "cart cleared")
}

func (h *CartHandler) Sync(c *gin.Context) {
	var req dto.SyncCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cart, err := h.svc.Sync(c.Request.Context(), middleware.GetUserID(c), req.Items)
	if err != nil {
		internalError(c)
		return
	}
	respondData(c, http.StatusOK, cart)
}
