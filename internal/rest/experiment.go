package rest

import (
	"context"
	"net/http"
	"strconv"

	"splitEngine/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type OverrideService interface {
	Override(ctx context.Context, campaignKey, subjectID, variantKey, reason string) (*domain.Assignment, error)
	ClearOverride(ctx context.Context, campaignKey, subjectID string) error
	Get(ctx context.Context, campaignKey, subjectID string) (*domain.Assignment, error)
}

type BanditService interface {
	Reallocate(ctx context.Context, campaignKey string) (*domain.AllocationHistory, error)
	History(ctx context.Context, campaignKey string, limit int) ([]domain.AllocationHistory, error)
}

type ResultsService interface {
	Aggregate(ctx context.Context, campaignKey, metricKey string) ([]domain.VariantResult, error)
}

// ExperimentHandler groups the admin operations that act on a running
// experiment rather than on its config.
type ExperimentHandler struct {
	validate  *validator.Validate
	campaigns CampaignService
	overrides OverrideService
	bandit    BanditService
	results   ResultsService
}

func NewExperimentHandler(campaigns CampaignService, overrides OverrideService, bandit BanditService, results ResultsService) *ExperimentHandler {
	return &ExperimentHandler{
		validate:  validator.New(),
		campaigns: campaigns,
		overrides: overrides,
		bandit:    bandit,
		results:   results,
	}
}

type OverrideRequest struct {
	SubjectID  string `json:"subjectId" validate:"required"`
	VariantKey string `json:"variantKey" validate:"required"`
	Reason     string `json:"reason"`
}

type ResultsResponse struct {
	CampaignKey string                 `json:"campaignKey"`
	MetricKey   string                 `json:"metricKey"`
	Variants    []domain.VariantResult `json:"variants"`
}

// POST /api/v1/campaigns/:key/override
func (h *ExperimentHandler) Override(c echo.Context) error {
	var req OverrideRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	a, err := h.overrides.Override(c.Request().Context(), c.Param("key"), req.SubjectID, req.VariantKey, req.Reason)
	if err != nil {
		return writeError(c, "failed to write override", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(a))
}

// DELETE /api/v1/campaigns/:key/override/:subjectId
func (h *ExperimentHandler) ClearOverride(c echo.Context) error {
	if err := h.overrides.ClearOverride(c.Request().Context(), c.Param("key"), c.Param("subjectId")); err != nil {
		return writeError(c, "failed to clear override", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// GET /api/v1/campaigns/:key/assignments/:subjectId
func (h *ExperimentHandler) GetAssignment(c echo.Context) error {
	a, err := h.overrides.Get(c.Request().Context(), c.Param("key"), c.Param("subjectId"))
	if err != nil {
		return writeError(c, "failed to get assignment", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(a))
}

// POST /api/v1/campaigns/:key/reallocate
func (h *ExperimentHandler) Reallocate(c echo.Context) error {
	history, err := h.bandit.Reallocate(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeError(c, "failed to reallocate", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(history))
}

// GET /api/v1/campaigns/:key/allocations?limit=20
func (h *ExperimentHandler) Allocations(c echo.Context) error {
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid limit"})
		}
		limit = n
	}

	history, err := h.bandit.History(c.Request().Context(), c.Param("key"), limit)
	if err != nil {
		return writeError(c, "failed to list allocations", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(history))
}

// GET /api/v1/campaigns/:key/results?metric=purchase
func (h *ExperimentHandler) Results(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	campaign, err := h.campaigns.GetCampaign(ctx, key)
	if err != nil {
		return writeError(c, "failed to get campaign", err)
	}

	metric := c.QueryParam("metric")
	if metric == "" {
		metric = campaign.PrimaryMetric
	}

	results, err := h.results.Aggregate(ctx, key, metric)
	if err != nil {
		return writeError(c, "failed to aggregate results", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(ResultsResponse{
		CampaignKey: key,
		MetricKey:   metric,
		Variants:    results,
	}))
}
