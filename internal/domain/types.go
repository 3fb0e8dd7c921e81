package domain

import (
	"encoding/json"
	"fmt"
)

// Location is a WGS-84 latitude/longitude pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Farm is immutable once loaded; the list is fetched once per session.
type Farm struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Location      Location `json:"location"`
	Area          float64  `json:"area"` // hectares
	DefaultCropID string   `json:"defaultCropId,omitempty"`
}

// Crop is immutable once loaded.
type Crop struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Type                string `json:"type"`
	PlantingDate        string `json:"plantingDate"`
	ExpectedHarvestDate string `json:"expectedHarvestDate"`
}

// DateRange bounds a time-series query. Dates are YYYY-MM-DD strings,
// passed through to the backend unparsed.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// FieldProperties carries the display attributes of a field boundary.
type FieldProperties struct {
	Area     float64 `json:"area"`
	CropType string  `json:"cropType"`
}

// FieldBoundary is one field polygon owned by a (farm, crop) pair.
// The boundary list for a pair is always replaced wholesale, never merged.
type FieldBoundary struct {
	ID         string          `json:"id"`
	FarmID     string          `json:"farmId"`
	CropID     string          `json:"cropId"`
	Geometry   Geometry        `json:"geometry"`
	Properties FieldProperties `json:"properties"`
}

// Geometry is a GeoJSON Polygon or MultiPolygon. Coordinates stay raw
// until a caller needs the bounding extent.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

// KPISummary is the dashboard's headline card values, already derived
// by the backend.
type KPISummary struct {
	ProductivityIncrease float64 `json:"productivityIncrease"` // percent
	WaterEfficiency      float64 `json:"waterEfficiency"`      // percent
	ESGAccuracy          float64 `json:"esgAccuracy"`          // percent, 0-100
	Timestamp            string  `json:"timestamp"`
}

// GridBounds is the geographic bounding box of a derived grid.
type GridBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// GridData is a 2-D scalar array over a bounding box. Row 0 is the
// northernmost row.
type GridData struct {
	Resolution float64     `json:"resolution"` // meters per pixel
	Bounds     GridBounds  `json:"bounds"`
	Values     [][]float64 `json:"values"`
}

// NDVIGrid is a vegetation-index grid for one field.
type NDVIGrid struct {
	FieldID   string   `json:"fieldId"`
	Timestamp string   `json:"timestamp"`
	Grid      GridData `json:"grid"`
}

// StressIndex is a crop-stress grid for one field.
type StressIndex struct {
	FieldID   string   `json:"fieldId"`
	Timestamp string   `json:"timestamp"`
	Grid      GridData `json:"grid"`
}

// TimeSeriesPoint is one sample of a derived time series.
type TimeSeriesPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// SoilMoisturePoint is a soil-moisture sample for one field.
type SoilMoisturePoint struct {
	FieldID   string   `json:"fieldId"`
	Timestamp string   `json:"timestamp"`
	Value     float64  `json:"value"`
	Depth     *float64 `json:"depth,omitempty"` // cm
}

// YieldPredictionPoint is a predicted-yield sample with model confidence.
type YieldPredictionPoint struct {
	FieldID    string   `json:"fieldId"`
	Timestamp  string   `json:"timestamp"`
	Value      float64  `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"` // 0-1
}

// Carbon metric types reported by the backend.
const (
	CarbonSequestration = "sequestration"
	CarbonEmission      = "emission"
	CarbonNet           = "net"
)

// CarbonMetricsPoint is a carbon-metric sample for one field.
type CarbonMetricsPoint struct {
	FieldID    string  `json:"fieldId"`
	Timestamp  string  `json:"timestamp"`
	Value      float64 `json:"value"`
	MetricType string  `json:"metricType"`
}

// WeatherPoint is a weather sample for one field's location.
type WeatherPoint struct {
	FieldID   string  `json:"fieldId"`
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
	Variable  string  `json:"variable,omitempty"`
}

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the response wrapper shared by every backend endpoint.
// The whole envelope, not just Data, is the unit cached by the response
// cache.
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
}

// DecodeData unmarshals the envelope payload into T.
func DecodeData[T any](env Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decode envelope data: %w", err)
	}
	return v, nil
}
