// Package orchestrator drives dataset loading for the dashboard: it
// reacts to selection changes, fans out the per-field fetches, applies
// cache-first-then-fresh reads, and publishes results through the state
// store's relevance guards.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/ai-labc/cropai/internal/adapter/backend"
	"github.com/ai-labc/cropai/internal/adapter/cache"
	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/observability"
	"github.com/ai-labc/cropai/internal/state"
)

// EventSink receives a notification whenever a fresh dataset lands. Nil
// sinks are allowed; publishing is fire-and-forget.
type EventSink interface {
	PublishRefresh(ctx context.Context, dataset, fieldID, fingerprint string) error
}

// Orchestrator coordinates loads between the gateway, the cache, and the
// state store. All Load methods are safe for concurrent use.
type Orchestrator struct {
	gateway backend.Gateway
	store   *state.Store
	cache   cache.Store
	logger  *slog.Logger
	metrics *observability.Metrics
	events  EventSink

	ready atomic.Bool

	// One in-flight load per grid dataset kind. A second request while
	// one is outstanding is skipped, not queued.
	gridFlight     atomic.Bool
	stressFlight   atomic.Bool
	timelineFlight atomic.Bool
}

// New wires an orchestrator. events may be nil.
func New(gateway backend.Gateway, store *state.Store, cacheStore cache.Store, logger *slog.Logger, metrics *observability.Metrics, events EventSink) *Orchestrator {
	return &Orchestrator{
		gateway: gateway,
		store:   store,
		cache:   cacheStore,
		logger:  logger,
		metrics: metrics,
		events:  events,
	}
}

// Ready reports whether the initial reference data has loaded.
func (o *Orchestrator) Ready() bool {
	return o.ready.Load()
}

// CheckReadiness returns nil once the farm and crop lists have loaded,
// or an error describing why the service is not yet ready.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("reference data has not loaded yet")
	}
	return nil
}

// LoadFarms fetches the farm list. Foreground: failure surfaces as a
// retryable error state.
func (o *Orchestrator) LoadFarms(ctx context.Context) error {
	o.store.SetLoading(true)
	defer o.store.SetLoading(false)

	farms, err := o.gateway.Farms(ctx)
	if err != nil {
		o.logger.Error("farm list load failed", "error", err)
		o.store.SetError(&state.ErrorState{
			Message: "failed to load farms",
			Retry:   func() { _ = o.LoadFarms(context.Background()) },
		})
		return err
	}
	o.store.SetError(nil)
	o.store.SetFarms(farms)
	return nil
}

// LoadCrops fetches the crop list. Foreground, retryable.
func (o *Orchestrator) LoadCrops(ctx context.Context) error {
	o.store.SetLoading(true)
	defer o.store.SetLoading(false)

	crops, err := o.gateway.Crops(ctx)
	if err != nil {
		o.logger.Error("crop list load failed", "error", err)
		o.store.SetError(&state.ErrorState{
			Message: "failed to load crops",
			Retry:   func() { _ = o.LoadCrops(context.Background()) },
		})
		return err
	}
	o.store.SetError(nil)
	o.store.SetCrops(crops)
	return nil
}

// Bootstrap loads the reference lists and marks the orchestrator ready.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	if err := o.LoadFarms(ctx); err != nil {
		return err
	}
	if err := o.LoadCrops(ctx); err != nil {
		return err
	}
	o.ready.Store(true)
	return nil
}

// SelectFarm switches to the named farm and kicks off the dependent
// loads for the new (farm, crop) pair.
func (o *Orchestrator) SelectFarm(ctx context.Context, farmID string) error {
	snap := o.store.Snapshot()
	for _, f := range snap.Farms {
		if f.ID == farmID {
			o.store.SetFarm(f)
			return o.LoadFieldBoundaries(ctx)
		}
	}
	return domain.ValidationError("", "unknown farm id "+farmID)
}

// SelectCrop switches to the named crop and reloads the pair's data.
func (o *Orchestrator) SelectCrop(ctx context.Context, cropID string) error {
	snap := o.store.Snapshot()
	for _, c := range snap.Crops {
		if c.ID == cropID {
			o.store.SetCrop(c)
			return o.LoadFieldBoundaries(ctx)
		}
	}
	return domain.ValidationError("", "unknown crop id "+cropID)
}

// SearchLocation resolves a coordinate to the nearest farm. A successful
// match triggers the same loads as an explicit farm selection.
func (o *Orchestrator) SearchLocation(ctx context.Context, lat, lng float64) error {
	if err := o.store.FindNearestFarm(lat, lng); err != nil {
		return err
	}
	if o.store.Snapshot().Selection.SearchStatus != state.SearchSuccess {
		return nil
	}
	return o.LoadFieldBoundaries(ctx)
}

// SetDateRange updates the range and refreshes the datasets that depend
// on it.
func (o *Orchestrator) SetDateRange(ctx context.Context, r domain.DateRange) error {
	o.store.SetDateRange(r)
	snap := o.store.Snapshot()
	if len(snap.Boundaries) == 0 {
		return nil
	}
	o.LoadKPISummary(ctx)
	o.loadFieldSeries(ctx, snap.Boundaries[0])
	return nil
}

// LoadFieldBoundaries fetches the boundary list for the current pair and,
// on success, fans out the KPI load and the first field's series loads.
// Foreground, retryable: without boundaries the map is empty.
func (o *Orchestrator) LoadFieldBoundaries(ctx context.Context) error {
	farmID, cropID := o.store.SelectedPair()
	if farmID == "" || cropID == "" {
		return nil
	}

	o.store.SetLoading(true)
	fields, err := o.gateway.Fields(ctx, farmID, cropID)
	o.store.SetLoading(false)
	if err != nil {
		o.logger.Error("boundary load failed", "farm", farmID, "crop", cropID, "error", err)
		o.store.SetError(&state.ErrorState{
			Message: "failed to load field boundaries",
			Retry:   func() { _ = o.LoadFieldBoundaries(context.Background()) },
		})
		return err
	}

	if !o.store.ReplaceBoundaries(farmID, cropID, fields) {
		return nil
	}
	o.notifyRefresh(ctx, "field_boundaries", "", domain.Fingerprint(backend.PathFields, backend.FieldsParams(farmID, cropID)))

	o.LoadKPISummary(ctx)
	// The dashboard shows one field's series at a time, so only the
	// first boundary gets the derived loads.
	if len(fields) > 0 {
		o.loadFieldSeries(ctx, fields[0])
	}
	return nil
}

// LoadKPISummary refreshes the KPI cards. A partial selection is a no-op,
// never an error. Cached values publish immediately; a fresh fetch
// follows in the background and silently degrades on failure.
func (o *Orchestrator) LoadKPISummary(ctx context.Context) {
	sel := o.store.Snapshot().Selection
	if sel.Farm == nil || sel.Crop == nil {
		return
	}
	farmID, cropID := sel.Farm.ID, sel.Crop.ID
	loc := sel.Farm.Location
	q := backend.KPIQuery{FarmID: farmID, CropID: cropID, Location: &loc}

	if kpi, ok := cachedAs[domain.KPISummary](o.cache, backend.PathKPI, q.Params()); ok {
		o.store.PublishKPI(farmID, cropID, kpi)
	}

	o.background(ctx, func(ctx context.Context) {
		kpi, err := o.gateway.KPI(ctx, q, false)
		if err != nil {
			o.logger.Warn("kpi refresh failed", "farm", farmID, "crop", cropID, "error", err)
			return
		}
		if o.store.PublishKPI(farmID, cropID, kpi) {
			o.notifyRefresh(ctx, "kpi", "", domain.Fingerprint(backend.PathKPI, q.Params()))
		}
	})
}

// LoadNDVIGrid loads the vegetation grid for one field: skipped while a
// grid load is already in flight or the field's grid is already loaded.
func (o *Orchestrator) LoadNDVIGrid(ctx context.Context, fieldID string) {
	if o.store.HasNDVIGrid(fieldID) {
		return
	}
	if !o.gridFlight.CompareAndSwap(false, true) {
		o.metrics.SingleFlightSkips.WithLabelValues("ndvi_grid").Inc()
		return
	}
	o.background(ctx, func(ctx context.Context) {
		defer o.gridFlight.Store(false)
		grid, err := o.gateway.NDVIGrid(ctx, fieldID, "", true)
		if err != nil {
			o.logger.Warn("ndvi grid load failed", "field", fieldID, "error", err)
			return
		}
		if o.store.PublishNDVIGrid(fieldID, grid) {
			o.notifyRefresh(ctx, "ndvi_grid", fieldID, domain.Fingerprint(backend.NDVIGridPath(fieldID), nil))
		}
	})
}

// LoadStressIndex loads the stress grid for one field, same single-flight
// and skip rules as LoadNDVIGrid.
func (o *Orchestrator) LoadStressIndex(ctx context.Context, fieldID string) {
	if o.store.HasStressIndex(fieldID) {
		return
	}
	if !o.stressFlight.CompareAndSwap(false, true) {
		o.metrics.SingleFlightSkips.WithLabelValues("stress_index").Inc()
		return
	}
	o.background(ctx, func(ctx context.Context) {
		defer o.stressFlight.Store(false)
		q := o.stressQuery(fieldID)
		idx, err := o.gateway.StressIndex(ctx, fieldID, q, true)
		if err != nil {
			o.logger.Warn("stress index load failed", "field", fieldID, "error", err)
			return
		}
		if o.store.PublishStressIndex(fieldID, idx) {
			o.notifyRefresh(ctx, "stress_index", fieldID, domain.Fingerprint(backend.StressIndexPath(fieldID), q.Params()))
		}
	})
}

// LoadNDVITimeline loads the NDVI time series for one field.
func (o *Orchestrator) LoadNDVITimeline(ctx context.Context, fieldID string) {
	if o.store.HasNDVITimeline(fieldID) {
		return
	}
	if !o.timelineFlight.CompareAndSwap(false, true) {
		o.metrics.SingleFlightSkips.WithLabelValues("ndvi_timeline").Inc()
		return
	}
	o.background(ctx, func(ctx context.Context) {
		defer o.timelineFlight.Store(false)
		q := o.seriesQueryFor(fieldID)
		series, err := o.gateway.NDVITimeline(ctx, fieldID, q, true)
		if err != nil {
			o.logger.Warn("ndvi timeline load failed", "field", fieldID, "error", err)
			return
		}
		if o.store.PublishNDVITimeline(fieldID, series) {
			o.notifyRefresh(ctx, "ndvi_timeline", fieldID, domain.Fingerprint(backend.NDVITimelinePath(fieldID), q.Params()))
		}
	})
}

// loadFieldSeries kicks off the background series loads for one field:
// soil moisture, yield prediction, carbon metrics, and weather. Cached
// values publish first; fresh results replace them when they land.
// Failures degrade silently, the cards just stay on cached data.
func (o *Orchestrator) loadFieldSeries(ctx context.Context, field domain.FieldBoundary) {
	q := o.seriesQuery(field)
	fieldID := field.ID

	if s, ok := cachedAs[[]domain.SoilMoisturePoint](o.cache, backend.SoilMoisturePath(fieldID), q.Params()); ok {
		o.store.PublishSoilMoisture(fieldID, s)
	}
	if s, ok := cachedAs[[]domain.YieldPredictionPoint](o.cache, backend.YieldPath(fieldID), q.Params()); ok {
		o.store.PublishYield(fieldID, s)
	}
	if s, ok := cachedAs[[]domain.CarbonMetricsPoint](o.cache, backend.CarbonPath(fieldID), q.Params()); ok {
		o.store.PublishCarbon(fieldID, s)
	}
	if s, ok := cachedAs[[]domain.WeatherPoint](o.cache, backend.WeatherPath(fieldID), q.Params()); ok {
		o.store.PublishWeather(fieldID, s)
	}

	o.background(ctx, func(ctx context.Context) {
		if s, err := o.gateway.SoilMoisture(ctx, fieldID, q, false); err == nil {
			if o.store.PublishSoilMoisture(fieldID, s) {
				o.notifyRefresh(ctx, "soil_moisture", fieldID, domain.Fingerprint(backend.SoilMoisturePath(fieldID), q.Params()))
			}
		} else {
			o.logger.Warn("soil moisture refresh failed", "field", fieldID, "error", err)
		}
	})
	o.background(ctx, func(ctx context.Context) {
		if s, err := o.gateway.YieldPrediction(ctx, fieldID, q, false); err == nil {
			if o.store.PublishYield(fieldID, s) {
				o.notifyRefresh(ctx, "yield_prediction", fieldID, domain.Fingerprint(backend.YieldPath(fieldID), q.Params()))
			}
		} else {
			o.logger.Warn("yield refresh failed", "field", fieldID, "error", err)
		}
	})
	o.background(ctx, func(ctx context.Context) {
		if s, err := o.gateway.CarbonMetrics(ctx, fieldID, q, false); err == nil {
			if o.store.PublishCarbon(fieldID, s) {
				o.notifyRefresh(ctx, "carbon_metrics", fieldID, domain.Fingerprint(backend.CarbonPath(fieldID), q.Params()))
			}
		} else {
			o.logger.Warn("carbon refresh failed", "field", fieldID, "error", err)
		}
	})
	o.background(ctx, func(ctx context.Context) {
		if s, err := o.gateway.Weather(ctx, fieldID, q, false); err == nil {
			if o.store.PublishWeather(fieldID, s) {
				o.notifyRefresh(ctx, "weather", fieldID, domain.Fingerprint(backend.WeatherPath(fieldID), q.Params()))
			}
		} else {
			o.logger.Warn("weather refresh failed", "field", fieldID, "error", err)
		}
	})
}

// seriesQuery builds the per-field query point and date range. The point
// is the field's bounding-box centroid, falling back to the farm.
func (o *Orchestrator) seriesQuery(field domain.FieldBoundary) backend.SeriesQuery {
	snap := o.store.Snapshot()
	var farm domain.Farm
	if snap.Selection.Farm != nil {
		farm = *snap.Selection.Farm
	}
	point := domain.RepresentativePoint(field, farm)
	return backend.SeriesQuery{Location: &point, DateRange: snap.Selection.DateRange}
}

func (o *Orchestrator) seriesQueryFor(fieldID string) backend.SeriesQuery {
	for _, b := range o.store.Boundaries() {
		if b.ID == fieldID {
			return o.seriesQuery(b)
		}
	}
	snap := o.store.Snapshot()
	return backend.SeriesQuery{DateRange: snap.Selection.DateRange}
}

func (o *Orchestrator) stressQuery(fieldID string) backend.StressQuery {
	snap := o.store.Snapshot()
	q := backend.StressQuery{}
	if snap.Selection.Crop != nil {
		q.CropType = snap.Selection.Crop.Type
	}
	for _, b := range snap.Boundaries {
		if b.ID == fieldID {
			var farm domain.Farm
			if snap.Selection.Farm != nil {
				farm = *snap.Selection.Farm
			}
			point := domain.RepresentativePoint(b, farm)
			q.Location = &point
			break
		}
	}
	return q
}

// background runs fn on its own goroutine, detached from the caller's
// cancellation: a selection change never cancels an in-flight load, the
// result is just dropped at publish time if it no longer matches.
func (o *Orchestrator) background(_ context.Context, fn func(context.Context)) {
	o.metrics.LoadsInFlight.Inc()
	go func() {
		defer o.metrics.LoadsInFlight.Dec()
		fn(context.Background())
	}()
}

func (o *Orchestrator) notifyRefresh(ctx context.Context, dataset, fieldID, fingerprint string) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishRefresh(ctx, dataset, fieldID, fingerprint); err != nil {
		o.logger.Warn("refresh event publish failed", "dataset", dataset, "error", err)
		return
	}
	o.metrics.EventsPublished.Inc()
}

// cachedAs reads a fingerprinted envelope straight from the cache and
// decodes its payload. Any miss, expiry, or decode failure is just a
// miss.
func cachedAs[T any](store cache.Store, path string, params url.Values) (T, bool) {
	var zero T
	payload, ok := store.Get(domain.Fingerprint(path, params))
	if !ok {
		return zero, false
	}
	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Status != domain.StatusSuccess {
		return zero, false
	}
	v, err := domain.DecodeData[T](env)
	if err != nil {
		return zero, false
	}
	return v, true
}
