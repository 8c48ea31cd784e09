package rest

import (
	"context"
	"net/http"

	"splitEngine/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type IdentityService interface {
	Merge(ctx context.Context, fromID, toID string) (domain.MergeResult, error)
}

type IdentityHandler struct {
	validate *validator.Validate
	service  IdentityService
}

func NewIdentityHandler(service IdentityService) *IdentityHandler {
	return &IdentityHandler{
		validate: validator.New(),
		service:  service,
	}
}

type MergeRequest struct {
	FromID string `json:"fromId" validate:"required"`
	ToID   string `json:"toId" validate:"required,nefield=FromID"`
}

// POST /api/v1/identity/merge
func (h *IdentityHandler) Merge(c echo.Context) error {
	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	result, err := h.service.Merge(c.Request().Context(), req.FromID, req.ToID)
	if err != nil {
		return writeError(c, "failed to merge identities", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(result))
}
