package backend

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/ai-labc/cropai/internal/domain"
)

// MockGateway serves deterministic fixture data with the same contract as
// the HTTP client. It never errors and ignores useCache, so the dashboard
// is fully usable without a backend.
type MockGateway struct{}

var _ Gateway = (*MockGateway)(nil)

func NewMockGateway() *MockGateway { return &MockGateway{} }

var mockFarms = []domain.Farm{
	{
		ID:            "farm-1",
		Name:          "Hartland Colony",
		Location:      domain.Location{Lat: 52.619167, Lng: -113.092639},
		Area:          250.5,
		DefaultCropID: "crop-1",
	},
	{
		ID:            "farm-2",
		Name:          "Exceedagro Reference Field",
		Location:      domain.Location{Lat: 54.0167, Lng: -124.0167},
		Area:          180.3,
		DefaultCropID: "crop-2",
	},
}

var mockCrops = []domain.Crop{
	{
		ID:                  "crop-1",
		Name:                "Canola",
		Type:                "Oilseed",
		PlantingDate:        "2024-05-01",
		ExpectedHarvestDate: "2024-09-15",
	},
	{
		ID:                  "crop-2",
		Name:                "Timothy Hay",
		Type:                "Forage",
		PlantingDate:        "2024-04-15",
		ExpectedHarvestDate: "2024-07-20",
	},
}

func polygon(coords [][]float64) domain.Geometry {
	raw, _ := json.Marshal([][][]float64{coords})
	return domain.Geometry{Type: "Polygon", Coordinates: raw}
}

var mockFields = []domain.FieldBoundary{
	{
		ID: "field-1", FarmID: "farm-1", CropID: "crop-1",
		Geometry: polygon([][]float64{
			{-113.097639, 52.614167},
			{-113.087639, 52.614167},
			{-113.087639, 52.624167},
			{-113.097639, 52.624167},
			{-113.097639, 52.614167},
		}),
		Properties: domain.FieldProperties{Area: 64.2, CropType: "Oilseed"},
	},
	{
		ID: "field-2", FarmID: "farm-1", CropID: "crop-1",
		Geometry: polygon([][]float64{
			{-113.107639, 52.614167},
			{-113.098639, 52.614167},
			{-113.098639, 52.624167},
			{-113.107639, 52.624167},
			{-113.107639, 52.614167},
		}),
		Properties: domain.FieldProperties{Area: 58.7, CropType: "Oilseed"},
	},
	{
		ID: "field-3", FarmID: "farm-2", CropID: "crop-2",
		Geometry: polygon([][]float64{
			{-124.021700, 54.011700},
			{-124.011700, 54.011700},
			{-124.011700, 54.021700},
			{-124.021700, 54.021700},
			{-124.021700, 54.011700},
		}),
		Properties: domain.FieldProperties{Area: 48.9, CropType: "Forage"},
	},
	{
		ID: "field-4", FarmID: "farm-2", CropID: "crop-2",
		Geometry: polygon([][]float64{
			{-124.031700, 54.011700},
			{-124.022700, 54.011700},
			{-124.022700, 54.021700},
			{-124.031700, 54.021700},
			{-124.031700, 54.011700},
		}),
		Properties: domain.FieldProperties{Area: 41.4, CropType: "Forage"},
	},
}

func (m *MockGateway) Farms(context.Context) ([]domain.Farm, error) {
	return append([]domain.Farm(nil), mockFarms...), nil
}

func (m *MockGateway) Crops(context.Context) ([]domain.Crop, error) {
	return append([]domain.Crop(nil), mockCrops...), nil
}

// Fields returns the boundaries owned by the pair. Unknown pairs yield an
// empty list, not an error, matching the backend contract.
func (m *MockGateway) Fields(_ context.Context, farmID, cropID string) ([]domain.FieldBoundary, error) {
	if farmID == "" || cropID == "" {
		return nil, domain.ValidationError(PathFields, "farm_id and crop_id are required")
	}
	var out []domain.FieldBoundary
	for _, f := range mockFields {
		if f.FarmID == farmID && f.CropID == cropID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MockGateway) KPI(_ context.Context, q KPIQuery, _ bool) (domain.KPISummary, error) {
	// Scope nudges the values so distinct selections are visibly distinct.
	seed := seedFrom(q.FarmID + q.CropID + q.FieldID)
	return domain.KPISummary{
		ProductivityIncrease: round1(12.0 + 6.0*seed),
		WaterEfficiency:      round1(18.0 + 8.0*seed),
		ESGAccuracy:          round1(88.0 + 9.0*seed),
		Timestamp:            domain.Now().UTC().Format("2006-01-02T15:04:05Z"),
	}, nil
}

func (m *MockGateway) NDVIGrid(_ context.Context, fieldID, _ string, _ bool) (domain.NDVIGrid, error) {
	return domain.NDVIGrid{
		FieldID:   fieldID,
		Timestamp: domain.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Grid:      m.grid(fieldID, 0.15, 0.92),
	}, nil
}

func (m *MockGateway) NDVITimeline(_ context.Context, fieldID string, _ SeriesQuery, _ bool) ([]domain.TimeSeriesPoint, error) {
	series := make([]domain.TimeSeriesPoint, 0, seriesDays)
	for i, ts := range seriesTimestamps() {
		series = append(series, domain.TimeSeriesPoint{
			Timestamp: ts,
			Value:     round3(0.35 + 0.3*wave(fieldID, i)),
		})
	}
	return series, nil
}

func (m *MockGateway) StressIndex(_ context.Context, fieldID string, _ StressQuery, _ bool) (domain.StressIndex, error) {
	return domain.StressIndex{
		FieldID:   fieldID,
		Timestamp: domain.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Grid:      m.grid(fieldID, 0.05, 0.85),
	}, nil
}

func (m *MockGateway) SoilMoisture(_ context.Context, fieldID string, _ SeriesQuery, _ bool) ([]domain.SoilMoisturePoint, error) {
	depth := 10.0
	series := make([]domain.SoilMoisturePoint, 0, seriesDays)
	for i, ts := range seriesTimestamps() {
		series = append(series, domain.SoilMoisturePoint{
			FieldID:   fieldID,
			Timestamp: ts,
			Value:     round3(0.20 + 0.18*wave(fieldID, i)),
			Depth:     &depth,
		})
	}
	return series, nil
}

func (m *MockGateway) YieldPrediction(_ context.Context, fieldID string, _ SeriesQuery, _ bool) ([]domain.YieldPredictionPoint, error) {
	series := make([]domain.YieldPredictionPoint, 0, seriesDays)
	for i, ts := range seriesTimestamps() {
		conf := round3(0.70 + 0.25*float64(i)/float64(seriesDays-1))
		series = append(series, domain.YieldPredictionPoint{
			FieldID:    fieldID,
			Timestamp:  ts,
			Value:      round3(2.8 + 1.4*wave(fieldID, i)),
			Confidence: &conf,
		})
	}
	return series, nil
}

func (m *MockGateway) CarbonMetrics(_ context.Context, fieldID string, _ SeriesQuery, _ bool) ([]domain.CarbonMetricsPoint, error) {
	series := make([]domain.CarbonMetricsPoint, 0, seriesDays*3)
	for i, ts := range seriesTimestamps() {
		seq := round3(1.2 + 0.5*wave(fieldID, i))
		emit := round3(0.4 + 0.2*wave(fieldID, i+7))
		series = append(series,
			domain.CarbonMetricsPoint{FieldID: fieldID, Timestamp: ts, Value: seq, MetricType: domain.CarbonSequestration},
			domain.CarbonMetricsPoint{FieldID: fieldID, Timestamp: ts, Value: emit, MetricType: domain.CarbonEmission},
			domain.CarbonMetricsPoint{FieldID: fieldID, Timestamp: ts, Value: round3(seq - emit), MetricType: domain.CarbonNet},
		)
	}
	return series, nil
}

func (m *MockGateway) Weather(_ context.Context, fieldID string, q SeriesQuery, _ bool) ([]domain.WeatherPoint, error) {
	if q.Location == nil {
		return nil, domain.ValidationError(WeatherPath(fieldID), "lat and lng are required")
	}
	series := make([]domain.WeatherPoint, 0, seriesDays)
	for i, ts := range seriesTimestamps() {
		series = append(series, domain.WeatherPoint{
			FieldID:   fieldID,
			Timestamp: ts,
			Value:     round1(14.0 + 9.0*wave(fieldID, i)),
			Variable:  "temperature",
		})
	}
	return series, nil
}

const (
	seriesDays = 30
	gridSize   = 8
)

// grid builds a gridSize x gridSize sinusoid over the field's bounding
// box, values spanning [lo, hi]. The pattern is stable per field so the
// map does not flicker across reloads.
func (m *MockGateway) grid(fieldID string, lo, hi float64) domain.GridData {
	bounds := m.fieldBounds(fieldID)
	phase := seedFrom(fieldID) * math.Pi

	values := make([][]float64, gridSize)
	for row := range values {
		values[row] = make([]float64, gridSize)
		for col := range values[row] {
			s := math.Sin(phase + float64(row)*0.7 + float64(col)*0.9)
			values[row][col] = round3(lo + (hi-lo)*(s+1)/2)
		}
	}

	return domain.GridData{
		Resolution: 10,
		Bounds:     bounds,
		Values:     values,
	}
}

func (m *MockGateway) fieldBounds(fieldID string) domain.GridBounds {
	for _, f := range mockFields {
		if f.ID != fieldID {
			continue
		}
		if b, ok := f.Geometry.BoundingExtent(); ok {
			return b
		}
	}
	// Unknown field: a small box near the first farm.
	return domain.GridBounds{North: 52.62, South: 52.61, East: -113.08, West: -113.10}
}

func seriesTimestamps() []string {
	end := domain.Now().UTC().Truncate(24 * time.Hour)
	out := make([]string, seriesDays)
	for i := 0; i < seriesDays; i++ {
		day := end.AddDate(0, 0, i-(seriesDays-1))
		out[i] = day.Format("2006-01-02T15:04:05Z")
	}
	return out
}

// wave maps (id, index) to a stable value in [0, 1].
func wave(id string, i int) float64 {
	return (math.Sin(seedFrom(id)*math.Pi+float64(i)*0.45) + 1) / 2
}

// seedFrom folds a string into a stable value in [0, 1).
func seedFrom(s string) float64 {
	var h uint32
	for _, c := range []byte(s) {
		h = h*31 + uint32(c)
	}
	return float64(h%1000) / 1000
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
