package models

import (
	"fmt"
	"strings"
	"time"
)

// Metric names accepted in a ReportSpec. Providers translate these into
// their own parameter vocabulary.
const (
	MetricTemperatureMax           = "temperature_max"
	MetricTemperatureMin           = "temperature_min"
	MetricPrecipitationProbability = "precipitation_probability"
)

const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time component. It marshals to and from
// ISO "YYYY-MM-DD" strings, which is the format every provider speaks.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts a plain ISO date or a full timestamp, in which case the
// time component is dropped.
func ParseDate(value string) (Date, error) {
	text := value
	if idx := strings.IndexByte(text, 'T'); idx >= 0 {
		text = text[:idx]
	}
	t, err := time.Parse(dateLayout, text)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	text := strings.Trim(string(data), `"`)
	parsed, err := ParseDate(text)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Timeframe bounds a report window. Both ends are inclusive.
type Timeframe struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Days returns the number of calendar days covered, inclusive of both ends.
func (t Timeframe) Days() int {
	return int(t.End.Sub(t.Start.Time).Hours()/24) + 1
}

// ReportSpec is the normalized description of what data is wanted, which
// provider should supply it, and how an asynchronous delivery can be matched
// back to this request.
type ReportSpec struct {
	Location    Location  `json:"location"`
	Timeframe   Timeframe `json:"timeframe"`
	Metrics     []string  `json:"metrics"`
	Units       string    `json:"units"`
	ProviderID  string    `json:"provider_id"`
	ReferenceID string    `json:"reference_id,omitempty"`

	// RequestID is stamped by the serving layer, never by callers. It is
	// threaded into callback correlation so an out-of-band delivery can be
	// traced to the originating HTTP request.
	RequestID string `json:"-"`
}

// Validate checks the invariants that hold regardless of provider. Provider
// business rules are enforced by the clients themselves.
func (s *ReportSpec) Validate() error {
	if s.Location.Latitude < -90 || s.Location.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", s.Location.Latitude)
	}
	if s.Location.Longitude < -180 || s.Location.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", s.Location.Longitude)
	}
	if s.Timeframe.End.Before(s.Timeframe.Start.Time) {
		return fmt.Errorf("timeframe end %s precedes start %s", s.Timeframe.End, s.Timeframe.Start)
	}
	if len(s.Metrics) == 0 {
		return fmt.Errorf("at least one metric is required")
	}
	switch s.Units {
	case UnitsMetric, UnitsImperial:
	case "":
		s.Units = UnitsMetric
	default:
		return fmt.Errorf("unsupported units %q", s.Units)
	}
	return nil
}

// WeatherDataPoint is one day of normalized provider data. Every metric is
// independently optional: nil means "not requested" or "not provided by the
// source", never zero.
type WeatherDataPoint struct {
	Date                     Date     `json:"date"`
	TemperatureMax           *float64 `json:"temperature_max,omitempty"`
	TemperatureMin           *float64 `json:"temperature_min,omitempty"`
	PrecipitationProbability *float64 `json:"precipitation_probability,omitempty"`
}

// ProviderDataset is the canonical result shape every adapter returns.
// Data is ordered by date ascending; duplicate dates are treated as a
// provider error upstream and are not deduplicated here.
type ProviderDataset struct {
	ProviderID  string             `json:"provider_id"`
	Source      string             `json:"source"`
	Granularity string             `json:"granularity"`
	Data        []WeatherDataPoint `json:"data"`
}

const GranularityDaily = "daily"

// Float64Ptr is a small helper for building optional metric values.
func Float64Ptr(v float64) *float64 {
	return &v
}
