// Command probe smoke-checks a running analytics backend: it walks the
// read endpoints the dashboard depends on, verifies the responses hang
// together (farms reference known crops, fields reference their owning
// pair, grids carry sane bounds), and reports per-phase pass/fail.
//
// Usage:
//
//	go run ./cmd/probe -base-url http://localhost:3000/api
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ai-labc/cropai/internal/adapter/backend"
	"github.com/ai-labc/cropai/internal/adapter/cache"
	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/observability"
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	baseURL := flag.String("base-url", "", "backend base URL (empty probes the built-in mock gateway)")
	timeout := flag.Duration("timeout", 60*time.Second, "per-request timeout")
	flag.Parse()

	if code := run(*baseURL, *timeout); code != 0 {
		os.Exit(code)
	}
}

func run(baseURL string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gw backend.Gateway
	if baseURL == "" {
		fmt.Println("=== Probing built-in mock gateway ===")
		gw = backend.NewMockGateway()
	} else {
		fmt.Printf("=== Probing %s ===\n", baseURL)
		store, err := cache.Open(cache.Config{InMemory: true}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: open cache: %v\n", err)
			return 1
		}
		defer store.Close()
		gw = backend.NewClient(baseURL, timeout, store, time.Hour, logger, observability.NewMetricsForTesting())
	}
	fmt.Println()

	farms, crops, p1 := probeReferenceData(ctx, gw)
	phases := []*phase{p1}

	var fields []domain.FieldBoundary
	if p1.passed() {
		var p2 *phase
		fields, p2 = probeBoundaries(ctx, gw, farms)
		phases = append(phases, p2)

		phases = append(phases, probeDatasets(ctx, gw, farms, crops, fields))
	}

	return report(phases, farms, crops, fields)
}

// probeReferenceData checks the farm and crop lists and their cross
// references.
func probeReferenceData(ctx context.Context, gw backend.Gateway) ([]domain.Farm, []domain.Crop, *phase) {
	p := &phase{name: "Phase 1: Reference data (farms, crops)"}

	farms, err := gw.Farms(ctx)
	if err != nil {
		p.errorf("farms: %v", err)
		return nil, nil, p
	}
	if len(farms) == 0 {
		p.errorf("farms: empty list")
	}

	crops, err := gw.Crops(ctx)
	if err != nil {
		p.errorf("crops: %v", err)
		return farms, nil, p
	}
	if len(crops) == 0 {
		p.errorf("crops: empty list")
	}

	cropIDs := map[string]bool{}
	for _, c := range crops {
		if c.ID == "" {
			p.errorf("crop with empty id (name=%q)", c.Name)
		}
		cropIDs[c.ID] = true
	}

	for _, f := range farms {
		if f.ID == "" {
			p.errorf("farm with empty id (name=%q)", f.Name)
		}
		if err := domain.ValidateCoordinates(f.Location.Lat, f.Location.Lng); err != nil {
			p.errorf("farm %s: %v", f.ID, err)
		}
		if f.DefaultCropID != "" && !cropIDs[f.DefaultCropID] {
			p.errorf("farm %s: default crop %q not in crop list", f.ID, f.DefaultCropID)
		}
	}
	return farms, crops, p
}

// probeBoundaries fetches each farm's default-crop boundary list and
// checks ownership and geometry.
func probeBoundaries(ctx context.Context, gw backend.Gateway, farms []domain.Farm) ([]domain.FieldBoundary, *phase) {
	p := &phase{name: "Phase 2: Field boundaries"}

	var all []domain.FieldBoundary
	for _, farm := range farms {
		if farm.DefaultCropID == "" {
			continue
		}
		fields, err := gw.Fields(ctx, farm.ID, farm.DefaultCropID)
		if err != nil {
			p.errorf("fields(%s, %s): %v", farm.ID, farm.DefaultCropID, err)
			continue
		}
		for _, f := range fields {
			if f.FarmID != farm.ID {
				p.errorf("field %s: farmId %q, expected %q", f.ID, f.FarmID, farm.ID)
			}
			if f.CropID != farm.DefaultCropID {
				p.errorf("field %s: cropId %q, expected %q", f.ID, f.CropID, farm.DefaultCropID)
			}
			if _, ok := f.Geometry.BoundingExtent(); !ok {
				p.errorf("field %s: geometry has no usable extent", f.ID)
			}
		}
		all = append(all, fields...)
	}
	if len(all) == 0 {
		p.errorf("no field boundaries for any farm")
	}
	return all, p
}

// probeDatasets spot-checks the derived datasets for the first field.
func probeDatasets(ctx context.Context, gw backend.Gateway, farms []domain.Farm, crops []domain.Crop, fields []domain.FieldBoundary) *phase {
	p := &phase{name: "Phase 3: Derived datasets (kpi, grids, series)"}
	if len(fields) == 0 || len(farms) == 0 {
		p.errorf("nothing to probe, no fields resolved")
		return p
	}

	field := fields[0]
	var farm domain.Farm
	for _, f := range farms {
		if f.ID == field.FarmID {
			farm = f
			break
		}
	}
	point := domain.RepresentativePoint(field, farm)
	q := backend.SeriesQuery{Location: &point}

	kpi, err := gw.KPI(ctx, backend.KPIQuery{FarmID: field.FarmID, CropID: field.CropID}, false)
	if err != nil {
		p.errorf("kpi: %v", err)
	} else if kpi.ESGAccuracy < 0 || kpi.ESGAccuracy > 100 {
		p.errorf("kpi: esgAccuracy %g outside [0, 100]", kpi.ESGAccuracy)
	}

	grid, err := gw.NDVIGrid(ctx, field.ID, "", false)
	if err != nil {
		p.errorf("ndvi grid: %v", err)
	} else {
		checkGrid(p, "ndvi grid", grid.Grid)
	}

	stress, err := gw.StressIndex(ctx, field.ID, backend.StressQuery{Location: &point}, false)
	if err != nil {
		p.errorf("stress index: %v", err)
	} else {
		checkGrid(p, "stress index", stress.Grid)
	}

	if series, err := gw.NDVITimeline(ctx, field.ID, q, false); err != nil {
		p.errorf("ndvi timeline: %v", err)
	} else if len(series) == 0 {
		p.errorf("ndvi timeline: empty series")
	}
	if series, err := gw.SoilMoisture(ctx, field.ID, q, false); err != nil {
		p.errorf("soil moisture: %v", err)
	} else if len(series) == 0 {
		p.errorf("soil moisture: empty series")
	}
	if series, err := gw.CarbonMetrics(ctx, field.ID, q, false); err != nil {
		p.errorf("carbon metrics: %v", err)
	} else {
		for _, pt := range series {
			switch pt.MetricType {
			case domain.CarbonSequestration, domain.CarbonEmission, domain.CarbonNet:
			default:
				p.errorf("carbon metrics: unknown metricType %q", pt.MetricType)
			}
		}
	}
	if series, err := gw.Weather(ctx, field.ID, q, false); err != nil {
		p.errorf("weather: %v", err)
	} else if len(series) == 0 {
		p.errorf("weather: empty series")
	}

	return p
}

func checkGrid(p *phase, name string, g domain.GridData) {
	if len(g.Values) == 0 {
		p.errorf("%s: empty values", name)
		return
	}
	if g.Bounds.North <= g.Bounds.South {
		p.errorf("%s: north %g <= south %g", name, g.Bounds.North, g.Bounds.South)
	}
	if g.Bounds.East <= g.Bounds.West {
		p.errorf("%s: east %g <= west %g", name, g.Bounds.East, g.Bounds.West)
	}
	if len(domain.SubdivideGrid(g)) == 0 {
		p.errorf("%s: no subdividable cells", name)
	}
}

func report(phases []*phase, farms []domain.Farm, crops []domain.Crop, fields []domain.FieldBoundary) int {
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-48s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Resolved: %d farms, %d crops, %d fields\n", len(farms), len(crops), len(fields))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll probes passed.")
		return 0
	}
	fmt.Println("\nProbe FAILED.")
	return 1
}
