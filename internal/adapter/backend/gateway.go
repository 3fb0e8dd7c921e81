// Package backend implements the gateway to the analytics backend: it
// translates logical data requests into HTTP calls, applies cross-cutting
// policy (timeout, response caching, error classification), and returns
// either a typed payload or a classified RequestError.
//
// When no backend is configured, MockGateway serves deterministic fixture
// data behind the same interface.
package backend

import (
	"context"
	"net/url"
	"strconv"

	"github.com/ai-labc/cropai/internal/domain"
)

// Endpoint paths. Field-scoped endpoints embed the field id in the path.
const (
	PathFarms  = "/farms"
	PathCrops  = "/crops"
	PathFields = "/fields"
	PathKPI    = "/kpi"
)

func NDVIGridPath(fieldID string) string     { return "/ndvi/" + fieldID + "/grid" }
func NDVITimelinePath(fieldID string) string { return "/ndvi/" + fieldID + "/timeline" }
func StressIndexPath(fieldID string) string  { return "/stress/" + fieldID }
func SoilMoisturePath(fieldID string) string { return "/soil-moisture/" + fieldID }
func YieldPath(fieldID string) string        { return "/yield-prediction/" + fieldID }
func CarbonPath(fieldID string) string       { return "/carbon-metrics/" + fieldID }
func WeatherPath(fieldID string) string      { return "/weather/" + fieldID }

// Gateway is the transport seam between the orchestrator and the
// analytics backend. Read methods taking useCache=false skip the cache
// consult but still populate the cache on success, which is how the
// orchestrator's fresh background fetches behave.
type Gateway interface {
	Farms(ctx context.Context) ([]domain.Farm, error)
	Crops(ctx context.Context) ([]domain.Crop, error)
	Fields(ctx context.Context, farmID, cropID string) ([]domain.FieldBoundary, error)
	KPI(ctx context.Context, q KPIQuery, useCache bool) (domain.KPISummary, error)
	NDVIGrid(ctx context.Context, fieldID, date string, useCache bool) (domain.NDVIGrid, error)
	NDVITimeline(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.TimeSeriesPoint, error)
	StressIndex(ctx context.Context, fieldID string, q StressQuery, useCache bool) (domain.StressIndex, error)
	SoilMoisture(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.SoilMoisturePoint, error)
	YieldPrediction(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.YieldPredictionPoint, error)
	CarbonMetrics(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.CarbonMetricsPoint, error)
	Weather(ctx context.Context, fieldID string, q SeriesQuery, useCache bool) ([]domain.WeatherPoint, error)
}

// SeriesQuery narrows a time-series request to a point and date range.
// All parts are optional on the wire.
type SeriesQuery struct {
	Location  *domain.Location
	DateRange domain.DateRange
}

// Params builds the query parameters for a series request. Unset parts
// are omitted so the fingerprint stays stable.
func (q SeriesQuery) Params() url.Values {
	params := url.Values{}
	if q.Location != nil {
		params.Set("lat", formatCoord(q.Location.Lat))
		params.Set("lng", formatCoord(q.Location.Lng))
	}
	if q.DateRange.Start != "" {
		params.Set("date_start", q.DateRange.Start)
	}
	if q.DateRange.End != "" {
		params.Set("date_end", q.DateRange.End)
	}
	return params
}

// KPIQuery identifies the scope of a KPI summary request.
type KPIQuery struct {
	FarmID   string
	CropID   string
	FieldID  string
	Location *domain.Location
}

// Params builds the query parameters for a KPI request.
func (q KPIQuery) Params() url.Values {
	params := url.Values{}
	if q.FarmID != "" {
		params.Set("farm_id", q.FarmID)
	}
	if q.CropID != "" {
		params.Set("crop_id", q.CropID)
	}
	if q.FieldID != "" {
		params.Set("field_id", q.FieldID)
	}
	if q.Location != nil {
		params.Set("lat", formatCoord(q.Location.Lat))
		params.Set("lng", formatCoord(q.Location.Lng))
	}
	return params
}

// StressQuery carries the optional parameters of a stress-index request.
type StressQuery struct {
	Location *domain.Location
	CropType string
}

// Params builds the query parameters for a stress-index request.
func (q StressQuery) Params() url.Values {
	params := url.Values{}
	if q.Location != nil {
		params.Set("lat", formatCoord(q.Location.Lat))
		params.Set("lng", formatCoord(q.Location.Lng))
	}
	if q.CropType != "" {
		params.Set("crop_type", q.CropType)
	}
	return params
}

// FieldsParams builds the query parameters for the field-boundary list.
func FieldsParams(farmID, cropID string) url.Values {
	params := url.Values{}
	params.Set("farm_id", farmID)
	params.Set("crop_id", cropID)
	return params
}

// NDVIGridParams builds the query parameters for an NDVI grid request.
func NDVIGridParams(date string) url.Values {
	params := url.Values{}
	if date != "" {
		params.Set("date", date)
	}
	return params
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
