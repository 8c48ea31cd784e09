package rest

import (
	"context"
	"net/http"

	"splitEngine/domain"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type AssignmentService interface {
	GetOrAssign(ctx context.Context, campaignKey, subjectID string, reqCtx map[string]any) domain.AssignmentDecision
}

type FlagService interface {
	Evaluate(ctx context.Context, flagKey, subjectID string, reqCtx map[string]any) domain.FlagDecision
	EvaluateAll(ctx context.Context, flagKeys []string, subjectID string, reqCtx map[string]any) map[string]domain.FlagDecision
}

type ConversionRecorder interface {
	RecordConversion(ctx context.Context, campaignKey, subjectID, metricKey string, value float64) (*domain.ConversionEvent, error)
}

// EvaluationHandler serves the hot path. Assignment and flag decisions are
// always 200; failures surface as reason "error".
type EvaluationHandler struct {
	validate    *validator.Validate
	assignments AssignmentService
	flags       FlagService
	recorder    ConversionRecorder
}

func NewEvaluationHandler(assignments AssignmentService, flags FlagService, recorder ConversionRecorder) *EvaluationHandler {
	return &EvaluationHandler{
		validate:    validator.New(),
		assignments: assignments,
		flags:       flags,
		recorder:    recorder,
	}
}

type EvaluateRequest struct {
	SubjectID string         `json:"subjectId" validate:"required"`
	Context   map[string]any `json:"context"`
}

type BatchEvaluateRequest struct {
	SubjectID string         `json:"subjectId" validate:"required"`
	Context   map[string]any `json:"context"`
	FlagKeys  []string       `json:"flagKeys" validate:"required,min=1,dive,required"`
}

type ConvertRequest struct {
	SubjectID string  `json:"subjectId" validate:"required"`
	MetricKey string  `json:"metricKey" validate:"required"`
	Value     float64 `json:"value"`
}

type FlagDecisionResponse struct {
	Enabled bool              `json:"enabled"`
	Variant *string           `json:"variant"`
	Payload any               `json:"payload,omitempty"`
	Reason  domain.FlagReason `json:"reason"`
}

type AssignmentDecisionResponse struct {
	VariantKey *string                 `json:"variantKey"`
	Payload    any                     `json:"payload,omitempty"`
	Reason     domain.AssignmentReason `json:"reason"`
}

// POST /api/v1/assign/:campaignKey
func (h *EvaluationHandler) Assign(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	d := h.assignments.GetOrAssign(c.Request().Context(), c.Param("campaignKey"), req.SubjectID, req.Context)

	return c.JSON(http.StatusOK, AssignmentDecisionResponse{
		VariantKey: optional(d.VariantKey),
		Payload:    d.Payload,
		Reason:     d.Reason,
	})
}

// POST /api/v1/flags/:flagKey/evaluate
func (h *EvaluationHandler) EvaluateFlag(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	d := h.flags.Evaluate(c.Request().Context(), c.Param("flagKey"), req.SubjectID, req.Context)

	return c.JSON(http.StatusOK, flagResponse(d))
}

// POST /api/v1/flags/evaluate
func (h *EvaluationHandler) EvaluateFlags(c echo.Context) error {
	var req BatchEvaluateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	decisions := h.flags.EvaluateAll(c.Request().Context(), req.FlagKeys, req.SubjectID, req.Context)

	out := make(map[string]FlagDecisionResponse, len(decisions))
	for key, d := range decisions {
		out[key] = flagResponse(d)
	}

	return c.JSON(http.StatusOK, out)
}

// POST /api/v1/track/:campaignKey/convert
func (h *EvaluationHandler) Convert(c echo.Context) error {
	var req ConvertRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	if _, err := h.recorder.RecordConversion(c.Request().Context(), c.Param("campaignKey"), req.SubjectID, req.MetricKey, req.Value); err != nil {
		return writeError(c, "failed to record conversion", err)
	}

	return c.NoContent(http.StatusNoContent)
}

func flagResponse(d domain.FlagDecision) FlagDecisionResponse {
	return FlagDecisionResponse{
		Enabled: d.Enabled,
		Variant: optional(d.Variant),
		Payload: d.Payload,
		Reason:  d.Reason,
	}
}

// optional renders an empty key as JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
