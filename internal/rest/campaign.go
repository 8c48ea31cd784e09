package rest

import (
	"context"
	"net/http"
	"time"

	"splitEngine/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type CampaignService interface {
	GetCampaign(ctx context.Context, key string) (domain.Campaign, error)
	ListCampaigns(ctx context.Context, kind domain.CampaignKind) ([]domain.Campaign, error)
	CreateCampaign(ctx context.Context, campaign *domain.Campaign) (*domain.Campaign, error)
	UpdateCampaign(ctx context.Context, key string, input *domain.Campaign) (*domain.Campaign, error)
	StartCampaign(ctx context.Context, key string) (*domain.Campaign, error)
	StopCampaign(ctx context.Context, key string) (*domain.Campaign, error)
	CompleteCampaign(ctx context.Context, key string) (*domain.Campaign, error)
	ArchiveCampaign(ctx context.Context, key string) (*domain.Campaign, error)
	ReseedCampaign(ctx context.Context, key string) (*domain.Campaign, error)
}

type CampaignHandler struct {
	validate *validator.Validate
	service  CampaignService
}

func NewCampaignHandler(service CampaignService) *CampaignHandler {
	return &CampaignHandler{
		validate: validator.New(),
		service:  service,
	}
}

type VariantRequest struct {
	Key     string  `json:"key" validate:"required"`
	Weight  float64 `json:"weight" validate:"gte=0"`
	Payload any     `json:"payload"`
}

type DependencyRequest struct {
	FlagKey       string `json:"flagKey" validate:"required"`
	RequiredState string `json:"requiredState" validate:"required"`
}

// CampaignConfigRequest carries the mutable config shared by create and update.
type CampaignConfigRequest struct {
	Variants            []VariantRequest    `json:"variants" validate:"dive"`
	Targeting           domain.Targeting    `json:"targeting"`
	Dependencies        []DependencyRequest `json:"dependencies" validate:"dive"`
	RolloutPercent      *float64            `json:"rolloutPercent" validate:"omitempty,gte=0,lte=100"`
	EnableAt            *time.Time          `json:"enableAt"`
	DisableAt           *time.Time          `json:"disableAt"`
	MinSamplePerVariant int                 `json:"minSamplePerVariant" validate:"gte=0"`
	PrimaryMetric       string              `json:"primaryMetric"`
}

type CreateCampaignRequest struct {
	Key  string              `json:"key" validate:"required,max=128"`
	Kind domain.CampaignKind `json:"kind" validate:"omitempty,oneof=experiment flag"`
	CampaignConfigRequest
}

func (r CampaignConfigRequest) apply(c *domain.Campaign) {
	c.Variants = make([]domain.Variant, 0, len(r.Variants))
	for _, v := range r.Variants {
		c.Variants = append(c.Variants, domain.Variant{Key: v.Key, Weight: v.Weight, Payload: v.Payload})
	}
	c.Dependencies = make([]domain.Dependency, 0, len(r.Dependencies))
	for _, d := range r.Dependencies {
		c.Dependencies = append(c.Dependencies, domain.Dependency{FlagKey: d.FlagKey, RequiredState: d.RequiredState})
	}
	c.Targeting = r.Targeting
	c.RolloutPercent = 100
	if r.RolloutPercent != nil {
		c.RolloutPercent = *r.RolloutPercent
	}
	c.EnableAt = r.EnableAt
	c.DisableAt = r.DisableAt
	c.MinSamplePerVariant = r.MinSamplePerVariant
	c.PrimaryMetric = r.PrimaryMetric
}

// POST /api/v1/campaigns
func (h *CampaignHandler) Create(c echo.Context) error {
	var req CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	campaign := &domain.Campaign{Key: req.Key, Kind: req.Kind}
	req.apply(campaign)

	created, err := h.service.CreateCampaign(c.Request().Context(), campaign)
	if err != nil {
		return writeError(c, "failed to create campaign", err)
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(created))
}

// PUT /api/v1/campaigns/:key
func (h *CampaignHandler) Update(c echo.Context) error {
	var req CampaignConfigRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err)
	}

	input := &domain.Campaign{}
	req.apply(input)

	updated, err := h.service.UpdateCampaign(c.Request().Context(), c.Param("key"), input)
	if err != nil {
		return writeError(c, "failed to update campaign", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(updated))
}

// GET /api/v1/campaigns?kind=flag
func (h *CampaignHandler) List(c echo.Context) error {
	kind := domain.CampaignKind(c.QueryParam("kind"))
	campaigns, err := h.service.ListCampaigns(c.Request().Context(), kind)
	if err != nil {
		return writeError(c, "failed to list campaigns", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(campaigns))
}

// GET /api/v1/campaigns/:key
func (h *CampaignHandler) Get(c echo.Context) error {
	campaign, err := h.service.GetCampaign(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeError(c, "failed to get campaign", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(campaign))
}

func (h *CampaignHandler) Start(c echo.Context) error {
	return h.lifecycle(c, h.service.StartCampaign)
}

func (h *CampaignHandler) Stop(c echo.Context) error {
	return h.lifecycle(c, h.service.StopCampaign)
}

func (h *CampaignHandler) Complete(c echo.Context) error {
	return h.lifecycle(c, h.service.CompleteCampaign)
}

func (h *CampaignHandler) Archive(c echo.Context) error {
	return h.lifecycle(c, h.service.ArchiveCampaign)
}

func (h *CampaignHandler) Reseed(c echo.Context) error {
	return h.lifecycle(c, h.service.ReseedCampaign)
}

func (h *CampaignHandler) lifecycle(c echo.Context, op func(context.Context, string) (*domain.Campaign, error)) error {
	campaign, err := op(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeError(c, "failed to change campaign", err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(campaign))
}
