package api

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
	"github.com/skyfield-labs/weather-report-agent/internal/services"
	"github.com/skyfield-labs/weather-report-agent/internal/specs"
	"github.com/skyfield-labs/weather-report-agent/pkg/client"
)

var validate = validator.New()

type Handler struct {
	reports       *services.ReportService
	providerSpecs *specs.Registry
	callbacks     *client.CallbackRegistry
	publicBaseURL string
	logger        *zap.Logger
}

func NewHandler(reports *services.ReportService, providerSpecs *specs.Registry, callbacks *client.CallbackRegistry, publicBaseURL string, logger *zap.Logger) *Handler {
	return &Handler{
		reports:       reports,
		providerSpecs: providerSpecs,
		callbacks:     callbacks,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// CreateReport handles POST /api/v1/reports
func (h *Handler) CreateReport(c *fiber.Ctx) error {
	var spec models.ReportSpec
	if err := c.BodyParser(&spec); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := validate.Struct(spec.Location); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
		spec.RequestID = rid
	} else {
		spec.RequestID = uuid.NewString()
	}

	h.logger.Info("Report requested",
		zap.String("request_id", spec.RequestID),
		zap.String("provider_id", spec.ProviderID),
		zap.String("location", spec.Location.Name))

	dataset, err := h.reports.FetchReport(c.Context(), &spec)
	if err != nil {
		return h.writeReportError(c, &spec, err)
	}

	return c.JSON(fiber.Map{
		"request_id": spec.RequestID,
		"dataset":    dataset,
	})
}

// writeReportError maps pipeline failures to HTTP statuses. Business
// rejections are the caller's problem, transport trouble is the upstream's,
// configuration mistakes are ours.
func (h *Handler) writeReportError(c *fiber.Ctx, spec *models.ReportSpec, err error) error {
	h.logger.Error("Report request failed",
		zap.String("request_id", spec.RequestID),
		zap.String("provider_id", spec.ProviderID),
		zap.Error(err))

	var reqErr *client.RequestError
	var transErr *client.TransportError
	var confErr *client.ConfigurationError

	switch {
	case errors.Is(err, client.ErrProviderIDRequired):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "provider_id is required",
		})
	case errors.Is(err, client.ErrUnknownProvider):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.As(err, &reqErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":    reqErr.Message,
			"provider": reqErr.Provider,
		})
	case errors.As(err, &transErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    "Provider is currently unavailable",
			"provider": transErr.Provider,
		})
	case errors.As(err, &confErr):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Provider integration is misconfigured",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch report",
		})
	}
}

// ListProviders handles GET /api/v1/providers
func (h *Handler) ListProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"providers": h.reports.Providers(),
	})
}

// UpsertProviderSpec handles POST /api/v1/providers
func (h *Handler) UpsertProviderSpec(c *fiber.Ctx) error {
	var spec specs.ProviderSpec
	if err := c.BodyParser(&spec); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.providerSpecs.Upsert(&spec); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.logger.Info("Provider spec stored", zap.String("provider_id", spec.ProviderID))
	return c.Status(fiber.StatusCreated).JSON(spec.Sanitized())
}

// GetProviderSpec handles GET /api/v1/providers/:provider_id
func (h *Handler) GetProviderSpec(c *fiber.Ctx) error {
	spec, ok := h.providerSpecs.Get(c.Params("provider_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Provider not found",
		})
	}
	return c.JSON(spec.Sanitized())
}

// ProviderCallback handles POST /api/v1/providers/:provider_id/callback.
// Deliveries are matched against the correlation registry by the exact URL
// the provider was given; unmatched deliveries are still accepted so a
// provider never retries forever against us.
func (h *Handler) ProviderCallback(c *fiber.Ctx) error {
	providerID := c.Params("provider_id")
	callbackURL := h.publicBaseURL + c.OriginalURL()

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		h.logger.Warn("Callback with unreadable body",
			zap.String("provider_id", providerID))
	}

	if corr, ok := h.callbacks.Get(callbackURL); ok {
		h.logger.Info("Provider callback matched",
			zap.String("provider_id", providerID),
			zap.String("request_id", corr.RequestID),
			zap.String("reference_id", corr.ReferenceID))
	} else {
		h.logger.Warn("Provider callback with no pending correlation",
			zap.String("provider_id", providerID),
			zap.String("url", callbackURL))
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "accepted",
	})
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"providers": h.reports.Providers(),
	})
}
