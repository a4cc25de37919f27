package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/skyfield-labs/weather-report-agent/internal/models"
)

const (
	DefaultSatSourceEndpoint   = "https://api.satsource.example/v1/reports"
	DefaultSatSourceAuthHeader = "api-key"
	DefaultSatSourceMaxRegions = 5
)

const (
	ReportTypeSeasonal  = "seasonal"
	ReportTypeAnnual    = "annual"
	ReportTypeMultiYear = "multi-year"
)

const regionMarker = "region:"

// SatSourceClient POSTs report specs to the SatSource aggregation endpoint.
// SatSource answers synchronously with an acknowledgement that may already
// carry dataset content, and delivers full artifacts later through the
// callback URL included in the payload.
type SatSourceClient struct {
	providerID       string
	endpoint         string
	authHeader       string
	apiKey           string
	maxRegions       int
	reportType       string
	yearCount        int
	regionOverride   []string
	hasOverride      bool
	callbackTemplate string
	transport        *Transport
	callbacks        *CallbackRegistry
	logger           *zap.Logger
}

// NewSatSourceClient validates the registry entry's business parameters and
// fails with a *ConfigurationError when the entry itself is misconfigured.
// Per-request constraints (region counts, year ranges, reference ids) are
// checked later, in BuildPayload.
func NewSatSourceClient(providerID string, config map[string]any, secrets map[string]string, deps Deps) (ProviderClient, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reportType := strings.ToLower(strings.TrimSpace(configString(config, "report_type", ReportTypeSeasonal)))
	switch reportType {
	case ReportTypeSeasonal, ReportTypeAnnual, ReportTypeMultiYear:
	default:
		return nil, NewConfigurationError(providerID,
			"unsupported report_type %q, allowed values: [annual multi-year seasonal]", reportType)
	}

	yearCount, err := configInt(config, "year_count", 1)
	if err != nil {
		return nil, NewConfigurationError(providerID, "year_count must be an integer")
	}

	maxRegions, err := configInt(config, "max_region_ids", DefaultSatSourceMaxRegions)
	if err != nil {
		return nil, NewConfigurationError(providerID, "max_region_ids must be an integer")
	}

	c := &SatSourceClient{
		providerID:       providerID,
		endpoint:         configString(config, "endpoint", DefaultSatSourceEndpoint),
		authHeader:       configString(config, "auth_header", DefaultSatSourceAuthHeader),
		apiKey:           secrets["api_key"],
		maxRegions:       maxRegions,
		reportType:       reportType,
		yearCount:        yearCount,
		callbackTemplate: configString(config, "callback_url", ""),
		transport:        NewTransport(providerID, deps.Transport, deps.HTTPClient, logger),
		callbacks:        deps.Callbacks,
		logger:           logger,
	}
	if c.callbacks == nil {
		c.callbacks = NewCallbackRegistry()
	}

	if raw, ok := config["region_ids"]; ok && raw != nil {
		override, err := regionOverrideList(raw)
		if err != nil {
			return nil, NewConfigurationError(providerID, "registry region_ids must be a list")
		}
		c.regionOverride = override
		c.hasOverride = true
	}

	return c, nil
}

func regionOverrideList(raw any) ([]string, error) {
	var values []any
	switch list := raw.(type) {
	case []any:
		values = list
	case []string:
		for _, s := range list {
			values = append(values, s)
		}
	default:
		return nil, fmt.Errorf("not a list")
	}
	regions := make([]string, 0, len(values))
	for _, v := range values {
		region := strings.TrimSpace(fmt.Sprintf("%v", v))
		if region != "" {
			regions = append(regions, region)
		}
	}
	return regions, nil
}

func (c *SatSourceClient) ProviderID() string {
	return c.providerID
}

// BuildPayload validates the business constraints in the order SatSource
// enforces them: regions first, then the reference id, then the year count.
func (c *SatSourceClient) BuildPayload(spec *models.ReportSpec) (map[string]any, error) {
	regions := c.resolveRegionIDs(spec)
	if len(regions) == 0 {
		return nil, NewRequestError(c.providerID, "at least one regionId is required for SatSource requests")
	}
	if len(regions) > c.maxRegions {
		return nil, NewRequestError(c.providerID, "SatSource supports at most %d region IDs", c.maxRegions)
	}
	if spec.ReferenceID == "" {
		return nil, NewRequestError(c.providerID, "SatSource requests require a referenceId")
	}
	if err := c.validateYearCount(); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"referenceId": spec.ReferenceID,
		"regionIds":   regions,
		"metrics":     spec.Metrics,
		"timeframe": map[string]string{
			"start": spec.Timeframe.Start.String(),
			"end":   spec.Timeframe.End.String(),
		},
		"units":      spec.Units,
		"reportType": c.reportType,
		"yearCount":  c.yearCount,
	}

	if c.callbackTemplate != "" {
		callbackURL := renderCallbackTemplate(c.callbackTemplate, map[string]string{
			"referenceId": spec.ReferenceID,
			"requestId":   spec.RequestID,
			"providerId":  c.providerID,
		})
		payload["callbackUrl"] = callbackURL

		c.logger.Info("SatSource callback scheduled",
			zap.String("provider_id", c.providerID),
			zap.String("reference_id", spec.ReferenceID),
			zap.String("callback_url", callbackURL))

		// Registered before dispatch so even an immediate provider callback
		// finds its correlation.
		requestID := spec.RequestID
		if requestID == "" {
			requestID = spec.ReferenceID
		}
		c.callbacks.Record(callbackURL, Correlation{
			RequestID:   requestID,
			ProviderID:  c.providerID,
			ReferenceID: spec.ReferenceID,
		})
	}

	return payload, nil
}

// resolveRegionIDs prefers the registry override verbatim; otherwise regions
// are derived from the location name. A "region:" prefix strips the marker
// and additionally allows commas as separators; without the marker only "|"
// and ";" split. A plain name is a single region.
func (c *SatSourceClient) resolveRegionIDs(spec *models.ReportSpec) []string {
	if c.hasOverride {
		return c.regionOverride
	}

	name := strings.TrimSpace(spec.Location.Name)
	if name == "" {
		return nil
	}

	delimiters := []string{"|", ";"}
	if strings.HasPrefix(strings.ToLower(name), regionMarker) {
		name = name[strings.Index(name, ":")+1:]
		delimiters = append(delimiters, ",")
	}

	for _, delimiter := range delimiters {
		if !strings.Contains(name, delimiter) {
			continue
		}
		var regions []string
		for _, part := range strings.Split(name, delimiter) {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				regions = append(regions, trimmed)
			}
		}
		return regions
	}
	return []string{name}
}

func (c *SatSourceClient) validateYearCount() error {
	if c.yearCount < 1 {
		return NewRequestError(c.providerID, "SatSource yearCount must be a positive integer")
	}
	if c.reportType == ReportTypeMultiYear {
		if c.yearCount < 2 || c.yearCount > 5 {
			return NewRequestError(c.providerID, "SatSource multi-year reports require a yearCount between 2 and 5 years")
		}
		return nil
	}
	if c.yearCount != 1 {
		return NewRequestError(c.providerID, "yearCount must be 1 for seasonal or annual SatSource reports")
	}
	return nil
}

// SignRequest attaches the provider credential under the configured header
// name. The payload is passed through untouched.
func (c *SatSourceClient) SignRequest(payload map[string]any, _ *models.ReportSpec) (*SignedRequest, error) {
	headers := map[string]string{"Content-Type": "application/json"}
	if c.apiKey != "" {
		headers[c.authHeader] = c.apiKey
	}
	return &SignedRequest{Payload: payload, Headers: headers}, nil
}

func (c *SatSourceClient) Dispatch(ctx context.Context, req *SignedRequest, spec *models.ReportSpec) (map[string]any, error) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, NewRequestError(c.providerID, "encoding SatSource payload failed: %v", err)
	}

	c.logger.Info("Sending SatSource request",
		zap.String("provider_id", c.providerID),
		zap.Any("regions", req.Payload["regionIds"]),
		zap.String("reference_id", spec.ReferenceID),
		zap.Int("payload_bytes", len(body)),
		zap.String("endpoint", c.endpoint))

	resp, err := c.transport.Call(ctx, func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for name, value := range req.Headers {
			r.Header.Set(name, value)
		}
		return r, nil
	}, nil)
	if err != nil {
		return nil, c.translateDispatchError(err, spec)
	}

	if err := c.checkSyncError(resp.Body, spec); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *SatSourceClient) translateDispatchError(err error, spec *models.ReportSpec) error {
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		c.logger.Warn("SatSource unavailable after retries",
			zap.String("provider_id", c.providerID),
			zap.String("reference_id", spec.ReferenceID),
			zap.Int("attempts", exhausted.Attempts))
		return &TransportError{Provider: c.providerID, Cause: err}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		message := c.summarizeHTTPError(statusErr)
		c.logger.Warn("SatSource HTTP error",
			zap.String("provider_id", c.providerID),
			zap.String("reference_id", spec.ReferenceID),
			zap.Int("status_code", statusErr.StatusCode),
			zap.String("error", message))
		return &RequestError{Provider: c.providerID, Message: message, Cause: statusErr}
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return &RequestError{Provider: c.providerID, Message: "SatSource returned an invalid JSON payload", Cause: decodeErr}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransportError{Provider: c.providerID, Cause: err}
}

// summarizeHTTPError aggregates whatever structured error content the
// response body carries into one message, falling back to the bare status.
func (c *SatSourceClient) summarizeHTTPError(statusErr *HTTPStatusError) string {
	var payload any
	if err := json.Unmarshal(statusErr.Body, &payload); err == nil {
		if messages := collectErrors(payload); len(messages) > 0 {
			return strings.Join(messages, "; ")
		}
	}
	return fmt.Sprintf("SatSource returned HTTP %d", statusErr.StatusCode)
}

// checkSyncError runs error aggregation on a successful response body:
// SatSource may report business errors without an HTTP error status. This
// happens before any attempt to read dataset content.
func (c *SatSourceClient) checkSyncError(body map[string]any, spec *models.ReportSpec) error {
	messages := collectErrors(body)
	if len(messages) == 0 {
		return nil
	}
	c.logger.Warn("SatSource rejected the payload",
		zap.String("provider_id", c.providerID),
		zap.String("reference_id", spec.ReferenceID),
		zap.Strings("errors", messages))
	return NewRequestError(c.providerID, "%s", strings.Join(messages, "; "))
}

func (c *SatSourceClient) ParseResponse(raw map[string]any, spec *models.ReportSpec) (*models.ProviderDataset, error) {
	if callback := extractCallbackPayload(raw); callback != nil {
		c.logCallbackStatus(callback, spec)
	}

	datasetPayload := extractDatasetPayload(raw)
	if datasetPayload == nil {
		return nil, NewRequestError(c.providerID, "SatSource response did not include dataset content")
	}

	metadata, _ := datasetPayload["metadata"].(map[string]any)
	if metadata == nil {
		metadata, _ = raw["metadata"].(map[string]any)
	}
	source := c.resolveSource(datasetPayload, metadata, raw)

	records := recordList(datasetPayload)
	points := make([]models.WeatherDataPoint, 0, len(records))
	for _, record := range records {
		point, err := c.parseRecord(record)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date.Time)
	})

	c.logger.Info("SatSource dataset normalized",
		zap.String("provider_id", c.providerID),
		zap.String("reference_id", spec.ReferenceID),
		zap.Int("records", len(points)))

	return &models.ProviderDataset{
		ProviderID:  c.providerID,
		Source:      source,
		Granularity: models.GranularityDaily,
		Data:        points,
	}, nil
}

func (c *SatSourceClient) resolveSource(datasetPayload, metadata, raw map[string]any) string {
	if s, ok := datasetPayload["source"].(string); ok && s != "" {
		return s
	}
	if metadata != nil {
		if s, ok := metadata["sourceId"].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := raw["source"].(string); ok && s != "" {
		return s
	}
	return "sat-source"
}

// extractDatasetPayload locates dataset content in strict priority order:
// a dataset/data field first (non-mapping values wrapped as {records: v}),
// then a farmDetails list paired with top-level metadata/source, then
// content nested inside a callback payload. The order is a documented
// contract, not an accident.
func extractDatasetPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}

	dataset := payload["dataset"]
	if !truthy(dataset) {
		dataset = payload["data"]
	}
	if truthy(dataset) {
		if m, ok := dataset.(map[string]any); ok {
			return m
		}
		return map[string]any{"records": dataset}
	}

	if farmDetails, ok := payload["farmDetails"].([]any); ok {
		return map[string]any{
			"records":  farmDetails,
			"metadata": payload["metadata"],
			"source":   payload["source"],
		}
	}

	if callback := extractCallbackPayload(payload); callback != nil {
		inner := callback["dataset"]
		if !truthy(inner) {
			inner = callback["body"]
		}
		if !truthy(inner) {
			inner = callback["payload"]
		}
		if m, ok := inner.(map[string]any); ok {
			return m
		}
	}
	return nil
}

func extractCallbackPayload(payload map[string]any) map[string]any {
	callback := payload["callback"]
	if !truthy(callback) {
		callback = payload["callbackPayload"]
	}
	if m, ok := callback.(map[string]any); ok {
		return m
	}
	return nil
}

func recordList(datasetPayload map[string]any) []map[string]any {
	raw := datasetPayload["records"]
	if !truthy(raw) {
		raw = datasetPayload["data"]
	}
	list, _ := raw.([]any)
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if record, ok := item.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records
}

// parseRecord maps one record onto a data point by trying an ordered list of
// candidate keys per logical field; the first non-null candidate wins.
func (c *SatSourceClient) parseRecord(record map[string]any) (models.WeatherDataPoint, error) {
	day := firstValue(record, "date", "day")
	if day == nil {
		if metadata, ok := record["metadata"].(map[string]any); ok {
			day = firstValue(metadata, "reportDate", "collectedAt", "deliveredAt")
		}
	}
	if day == nil {
		return models.WeatherDataPoint{}, NewRequestError(c.providerID, "SatSource record missing date field")
	}
	date, err := models.ParseDate(fmt.Sprintf("%v", day))
	if err != nil {
		return models.WeatherDataPoint{}, NewRequestError(c.providerID, "invalid date value in SatSource payload: %v", day)
	}

	tempMax := firstValue(record, "temperature_max", "temperatureMax", "maxTemp")
	tempMin := firstValue(record, "temperature_min", "temperatureMin", "minTemp")
	precip := firstValue(record, "precipitation_probability", "precipProbability")

	if satScore, ok := record["satScore"].(map[string]any); ok {
		if temperature, ok := satScore["temperature"].(map[string]any); ok {
			if tempMax == nil {
				tempMax = firstValue(temperature, "max", "high")
			}
			if tempMin == nil {
				tempMin = firstValue(temperature, "min", "low")
			}
		} else {
			if tempMax == nil {
				tempMax = firstValue(satScore, "temperatureMax", "maxTemp")
			}
			if tempMin == nil {
				tempMin = firstValue(satScore, "temperatureMin", "minTemp")
			}
		}
		if precip == nil {
			precip = firstValue(satScore, "precipitationProbability", "precipProbability")
		}
	}

	return models.WeatherDataPoint{
		Date:                     date,
		TemperatureMax:           maybeFloat(tempMax),
		TemperatureMin:           maybeFloat(tempMin),
		PrecipitationProbability: normalizePrecip(precip),
	}, nil
}

func (c *SatSourceClient) logCallbackStatus(callback map[string]any, spec *models.ReportSpec) {
	referenceID := spec.ReferenceID
	if ref, ok := callback["referenceId"].(string); ok && ref != "" {
		referenceID = ref
	}
	c.logger.Info("SatSource callback payload received",
		zap.String("provider_id", c.providerID),
		zap.String("reference_id", referenceID),
		zap.Any("callback_status", callback["status"]),
		zap.Any("artifact_url", callback["artifactUrl"]))
}

// collectErrors gathers every error message carried by a payload, whatever
// shape it arrives in: a single object, a list of objects, an object with
// top-level errorCode/message fields, or a bare string.
func collectErrors(payload any) []string {
	var messages []string
	switch v := payload.(type) {
	case map[string]any:
		if errValue := v["error"]; truthy(errValue) {
			messages = append(messages, formatError(errValue)...)
		}
		if errsValue := v["errors"]; truthy(errsValue) {
			if list, ok := errsValue.([]any); ok {
				for _, item := range list {
					messages = append(messages, formatError(item)...)
				}
			} else {
				messages = append(messages, formatError(errsValue)...)
			}
		}
		if truthy(v["errorCode"]) || truthy(v["message"]) {
			messages = append(messages, formatError(v)...)
		}
	case []any:
		for _, item := range v {
			messages = append(messages, formatError(item)...)
		}
	case string:
		if v != "" {
			messages = append(messages, v)
		}
	}

	filtered := messages[:0]
	for _, m := range messages {
		if m != "" {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// formatError renders one error value as a single line: code, then
// message/detail/reason, then "case N", then "field X", joined with " | ".
func formatError(errValue any) []string {
	switch v := errValue.(type) {
	case map[string]any:
		var parts []string
		if code := firstValue(v, "code", "errorCode"); code != nil {
			parts = append(parts, scalarString(code))
		}
		if detail := firstValue(v, "message", "detail", "reason"); detail != nil {
			parts = append(parts, scalarString(detail))
		}
		if caseID := firstValue(v, "case", "caseId"); caseID != nil {
			parts = append(parts, "case "+scalarString(caseID))
		}
		if field := firstValue(v, "field", "path"); field != nil {
			parts = append(parts, "field "+scalarString(field))
		}
		if len(parts) > 0 {
			return []string{strings.Join(parts, " | ")}
		}
		return []string{fmt.Sprintf("%v", v)}
	case string:
		return []string{v}
	case nil:
		return nil
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

// renderCallbackTemplate substitutes {referenceId}, {requestId} and
// {providerId} placeholders. Substitution of an unknown or malformed
// placeholder makes the whole rendering fail, and the raw template is
// returned unchanged. Deliberately lenient: a misconfigured template
// degrades to a static callback URL instead of failing the request.
func renderCallbackTemplate(template string, values map[string]string) string {
	rendered, err := expandPlaceholders(template, values)
	if err != nil {
		return template
	}
	return rendered
}

func expandPlaceholders(template string, values map[string]string) (string, error) {
	var out strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:open])
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", fmt.Errorf("unterminated placeholder")
		}
		name := rest[open+1 : open+closing]
		value, ok := values[name]
		if !ok {
			return "", fmt.Errorf("unknown placeholder %q", name)
		}
		out.WriteString(value)
		rest = rest[open+closing+1:]
	}
}

// Shared value helpers. Absence is modeled the way the providers' JSON does
// it: nil means the key was missing or null.

// firstValue returns the first non-null, non-empty-string candidate.
func firstValue(m map[string]any, keys ...string) any {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		return v
	}
	return nil
}

func maybeFloat(v any) *float64 {
	switch value := v.(type) {
	case float64:
		return &value
	case int:
		f := float64(value)
		return &f
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// normalizePrecip interprets values in [0,1] as fractions and scales them to
// the percentage domain; anything else numeric passes through unchanged.
func normalizePrecip(v any) *float64 {
	numeric := maybeFloat(v)
	if numeric == nil {
		return nil
	}
	if *numeric >= 0 && *numeric <= 1 {
		scaled := *numeric * 100
		return &scaled
	}
	return numeric
}

func scalarString(v any) string {
	return fmt.Sprintf("%v", v)
}

func truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case string:
		return value != ""
	case bool:
		return value
	case float64:
		return value != 0
	case map[string]any:
		return len(value) > 0
	case []any:
		return len(value) > 0
	default:
		return true
	}
}
