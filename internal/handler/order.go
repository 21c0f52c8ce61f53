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

type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyOrder):
			respondError(c, http.StatusBadRequest, "order must contain at least one item")
		case errors.Is(err, service.ErrProductNotFound):
			respondError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInsufficientStock):
			respondError(c, http.StatusConflict, err.Error())
		default:
			internalError(c)
		}
		return
	}
	respondData(c, http.StatusCreated, resp)
}

func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c), middleware.GetUserRole(c))
	if err != nil {
		internalError(c)
		return
	}
	respondData(c, http.StatusOK, orders)
}

func (h *OrderHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid id")
		return
	}
	resp, err := h.svc.GetByID(c.Request.Context(), id, middleware.GetUserID(c), middleware.GetUserRole(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			respondError(c, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrForbidden):
			respondError(c, http.StatusForbidden, "not your order")
		default:
			internalError(c)
		}
		return
	}
	respondData(c, http.StatusOK, resp)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := h.svc.UpdateStatus(c.Request.Context(), id, middleware.GetUserRole(c), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			respondError(c, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrInvalidStatus):
			respondError(c, http.StatusBadRequest, "invalid order status")
		case errors.Is(err, service.ErrInvalidTransition):
			respondError(c, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrForbidden):
			respondError(c, http.StatusForbidden, "admins and sellers only")
		default:
			internalError(c)
		}
		return
	}
	respondData(c, http.StatusOK, resp)
}
