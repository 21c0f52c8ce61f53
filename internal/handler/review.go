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

type ReviewHandler struct {
	svc *service.ReviewService
}

func NewReviewHandler(svc *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{svc: svc}
}

// List accepts optional product and user query filters.
func (h *ReviewHandler) List(c *gin.Context) {
	var productID, userID *uuid.UUID
	if raw := c.Query("product"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid product id")
			return
		}
		productID = &id
	}
	if raw := c.Query("user"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid user id")
			return
		}
		userID = &id
	}

	reviews, err := h.svc.List(c.Request.Context(), productID, userID)
	if err != nil {
		internalError(c)
		return
	}
	respondData(c, http.StatusOK, reviews)
}

func (h *ReviewHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid id")
		return
	}
	resp, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrReviewNotFound) {
			respondError(c, http.StatusNotFound, "review not found")
			return
		}
		internalError(c)
		return
	}
	respondData(c, http.StatusOK, resp)
}

func (h *ReviewHandler) Create(c *gin.Context) {
	var req dto.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProductNotFound):
			respondError(c, http.StatusNotFound, "product not found")
		case errors.Is(err, service.ErrDuplicateReview):
			respondError(c, http.StatusConflict, "you already reviewed this product")
		default:
			internalError(c)
		}
		return
	}
	respondData(c, http.StatusCreated, resp)
}

func (h *ReviewHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req dto.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), id, middleware.GetUserID(c), middleware.GetUserRole(c), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReviewNotFound):
			respondError(c, http.StatusNotFound, "review not found")
		case errors.Is(err, service.ErrForbidden):
			respondError(c, http.StatusForbidden, "not your review")
		default:
			internalError(c)
		}
		return
	}
	respondData(c, http.StatusOK, resp)
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, middleware.GetUserID(c), middleware.GetUserRole(c)); err != nil {
		switch {
		case errors.Is(err, service.ErrReviewNotFound):
			respondError(c, http.StatusNotFound, "review not found")
		case errors.Is(err, service.ErrForbidden):
			respondError(c, http.StatusForbidden, "not your review")
		default:
			internalError(c)
		}
		return
	}
	respondMessage(c, http.StatusOK, "review deleted")
}
