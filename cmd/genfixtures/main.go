// Command genfixtures dumps the built-in mock gateway's responses as
// envelope JSON files, one per endpoint. The output doubles as frontend
// fixture data and as a reference for the backend wire contract.
//
// Usage:
//
//	go run ./cmd/genfixtures -out data/fixtures
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ai-labc/cropai/internal/adapter/backend"
	"github.com/ai-labc/cropai/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for fixture files")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	// Freeze the clock so timestamps and series windows are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	ctx := context.Background()
	gw := backend.NewMockGateway()

	farms, err := gw.Farms(ctx)
	if err != nil {
		return err
	}
	crops, err := gw.Crops(ctx)
	if err != nil {
		return err
	}

	files := map[string]any{
		"farms.json": farms,
		"crops.json": crops,
	}

	for _, farm := range farms {
		fields, err := gw.Fields(ctx, farm.ID, farm.DefaultCropID)
		if err != nil {
			return err
		}
		files[fmt.Sprintf("fields_%s_%s.json", farm.ID, farm.DefaultCropID)] = fields

		kpi, err := gw.KPI(ctx, backend.KPIQuery{FarmID: farm.ID, CropID: farm.DefaultCropID}, false)
		if err != nil {
			return err
		}
		files[fmt.Sprintf("kpi_%s_%s.json", farm.ID, farm.DefaultCropID)] = kpi

		for _, field := range fields {
			if err := collectFieldFixtures(ctx, gw, farm, field, files); err != nil {
				return err
			}
		}
	}

	for name, payload := range files {
		if err := writeEnvelope(filepath.Join(*out, name), payload); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		log.Printf("wrote %s", name)
	}

	log.Printf("done: %d fixture files", len(files))
	return nil
}

func collectFieldFixtures(ctx context.Context, gw backend.Gateway, farm domain.Farm, field domain.FieldBoundary, files map[string]any) error {
	point := domain.RepresentativePoint(field, farm)
	q := backend.SeriesQuery{Location: &point}
	id := strings.ReplaceAll(field.ID, "/", "_")

	grid, err := gw.NDVIGrid(ctx, field.ID, "", false)
	if err != nil {
		return err
	}
	files["ndvi_grid_"+id+".json"] = grid

	timeline, err := gw.NDVITimeline(ctx, field.ID, q, false)
	if err != nil {
		return err
	}
	files["ndvi_timeline_"+id+".json"] = timeline

	stress, err := gw.StressIndex(ctx, field.ID, backend.StressQuery{Location: &point, CropType: field.Properties.CropType}, false)
	if err != nil {
		return err
	}
	files["stress_"+id+".json"] = stress

	soil, err := gw.SoilMoisture(ctx, field.ID, q, false)
	if err != nil {
		return err
	}
	files["soil_moisture_"+id+".json"] = soil

	yield, err := gw.YieldPrediction(ctx, field.ID, q, false)
	if err != nil {
		return err
	}
	files["yield_"+id+".json"] = yield

	carbon, err := gw.CarbonMetrics(ctx, field.ID, q, false)
	if err != nil {
		return err
	}
	files["carbon_"+id+".json"] = carbon

	weather, err := gw.Weather(ctx, field.ID, q, false)
	if err != nil {
		return err
	}
	files["weather_"+id+".json"] = weather

	return nil
}

// writeEnvelope wraps the payload in the backend response envelope and
// writes it pretty-printed.
func writeEnvelope(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := domain.Envelope{
		Data:      data,
		Timestamp: domain.Now().UTC().Format(time.RFC3339),
		Status:    domain.StatusSuccess,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	pretty = append(pretty, '\n')
	return os.WriteFile(path, pretty, 0o600)
}
