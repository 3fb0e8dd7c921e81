// Package state holds the dashboard's shared selection and dataset state
// behind a single mutex. It is the serialization point: every mutation
// goes through the Store, and every publish of an async dataset result is
// re-checked against the current selection before it is applied, so
// results for a selection the user has already left are dropped.
package state

import (
	"log/slog"
	"sync"

	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/observability"
)

// Overlay names the active map overlay.
type Overlay string

const (
	OverlayNone       Overlay = "none"
	OverlayBoundaries Overlay = "boundaries"
	OverlayNDVI       Overlay = "ndvi"
	OverlayStress     Overlay = "stress"
)

// Search status of the location lookup box.
const (
	SearchIdle      = "idle"
	SearchSearching = "searching"
	SearchSuccess   = "success"
	SearchNotFound  = "not_found"
)

// Selection is the filter header: the active farm, crop, date range, and
// location search state.
type Selection struct {
	Farm          *domain.Farm
	Crop          *domain.Crop
	DateRange     domain.DateRange
	LocationInput *domain.Location
	SearchStatus  string
}

// ErrorState is a user-facing failure with an optional retry hook. Only
// foreground loads set it; background refreshes degrade silently.
type ErrorState struct {
	Message string
	Retry   func()
}

// Snapshot is a copy of everything a renderer needs. Slices and maps are
// shared read-only; subscribers must not mutate them.
type Snapshot struct {
	Farms      []domain.Farm
	Crops      []domain.Crop
	Selection  Selection
	Boundaries []domain.FieldBoundary
	Overlay    Overlay

	KPI *domain.KPISummary

	NDVIGrids    map[string]domain.NDVIGrid
	StressGrids  map[string]domain.StressIndex
	NDVITimeline map[string][]domain.TimeSeriesPoint

	SoilMoisture map[string][]domain.SoilMoisturePoint
	Yield        map[string][]domain.YieldPredictionPoint
	Carbon       map[string][]domain.CarbonMetricsPoint
	Weather      map[string][]domain.WeatherPoint

	Loading bool
	Error   *ErrorState
}

// Store is the single source of truth for dashboard state.
type Store struct {
	mu sync.Mutex

	farms      []domain.Farm
	crops      []domain.Crop
	selection  Selection
	boundaries []domain.FieldBoundary
	overlay    Overlay

	kpi *domain.KPISummary

	ndviGrids    map[string]domain.NDVIGrid
	stressGrids  map[string]domain.StressIndex
	ndviTimeline map[string][]domain.TimeSeriesPoint

	soilMoisture map[string][]domain.SoilMoisturePoint
	yield        map[string][]domain.YieldPredictionPoint
	carbon       map[string][]domain.CarbonMetricsPoint
	weather      map[string][]domain.WeatherPoint

	loading bool
	err     *ErrorState

	subscribers []func(Snapshot)
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewStore creates an empty store with no selection and the boundaries
// overlay armed, matching the initial screen.
func NewStore(logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		selection:    Selection{SearchStatus: SearchIdle},
		overlay:      OverlayBoundaries,
		ndviGrids:    map[string]domain.NDVIGrid{},
		stressGrids:  map[string]domain.StressIndex{},
		ndviTimeline: map[string][]domain.TimeSeriesPoint{},
		soilMoisture: map[string][]domain.SoilMoisturePoint{},
		yield:        map[string][]domain.YieldPredictionPoint{},
		carbon:       map[string][]domain.CarbonMetricsPoint{},
		weather:      map[string][]domain.WeatherPoint{},
		logger:       logger,
		metrics:      metrics,
	}
}

// Subscribe registers a callback invoked with a fresh snapshot after
// every applied mutation. Callbacks run outside the lock.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Farms:        s.farms,
		Crops:        s.crops,
		Selection:    s.selection,
		Boundaries:   s.boundaries,
		Overlay:      s.overlay,
		KPI:          s.kpi,
		NDVIGrids:    s.ndviGrids,
		StressGrids:  s.stressGrids,
		NDVITimeline: s.ndviTimeline,
		SoilMoisture: s.soilMoisture,
		Yield:        s.yield,
		Carbon:       s.carbon,
		Weather:      s.weather,
		Loading:      s.loading,
		Error:        s.err,
	}
}

// notify snapshots under the lock, then invokes subscribers outside it.
func (s *Store) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	subs := s.subscribers
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// SetFarms replaces the farm list.
func (s *Store) SetFarms(farms []domain.Farm) {
	s.mu.Lock()
	s.farms = farms
	s.mu.Unlock()
	s.notify()
}

// SetCrops replaces the crop list.
func (s *Store) SetCrops(crops []domain.Crop) {
	s.mu.Lock()
	s.crops = crops
	s.mu.Unlock()
	s.notify()
}

// SetFarm switches the selected farm in one atomic step: the farm's
// default crop becomes the selected crop, every per-field dataset map is
// cleared, the boundary list is dropped, and the overlay resets to
// boundaries. Nothing of the previous farm's data survives the switch.
func (s *Store) SetFarm(farm domain.Farm) {
	s.mu.Lock()
	s.selection.Farm = &farm
	s.selection.Crop = s.findCropLocked(farm.DefaultCropID)
	s.clearDatasetsLocked()
	s.overlay = OverlayBoundaries
	s.err = nil
	s.mu.Unlock()

	s.logger.Debug("farm selected", "farm", farm.ID, "defaultCrop", farm.DefaultCropID)
	s.notify()
}

// SetCrop switches the selected crop, clearing per-field data owned by
// the previous (farm, crop) pair.
func (s *Store) SetCrop(crop domain.Crop) {
	s.mu.Lock()
	s.selection.Crop = &crop
	s.clearDatasetsLocked()
	s.err = nil
	s.mu.Unlock()

	s.logger.Debug("crop selected", "crop", crop.ID)
	s.notify()
}

// SetDateRange updates the active date range without touching loaded
// data; callers decide what to refresh.
func (s *Store) SetDateRange(r domain.DateRange) {
	s.mu.Lock()
	s.selection.DateRange = r
	s.mu.Unlock()
	s.notify()
}

func (s *Store) clearDatasetsLocked() {
	s.boundaries = nil
	s.kpi = nil
	s.ndviGrids = map[string]domain.NDVIGrid{}
	s.stressGrids = map[string]domain.StressIndex{}
	s.ndviTimeline = map[string][]domain.TimeSeriesPoint{}
	s.soilMoisture = map[string][]domain.SoilMoisturePoint{}
	s.yield = map[string][]domain.YieldPredictionPoint{}
	s.carbon = map[string][]domain.CarbonMetricsPoint{}
	s.weather = map[string][]domain.WeatherPoint{}
}

func (s *Store) findCropLocked(id string) *domain.Crop {
	if id == "" {
		return nil
	}
	for i := range s.crops {
		if s.crops[i].ID == id {
			c := s.crops[i]
			return &c
		}
	}
	return nil
}

// FindNearestFarm resolves a coordinate search: validates the input,
// finds the closest farm within the search radius, and on success
// switches to it via the same atomic path as SetFarm. A miss clears the
// farm and crop selection along with their data in one step. The typed
// input is kept either way so the map can recenter on it.
func (s *Store) FindNearestFarm(lat, lng float64) error {
	if err := domain.ValidateCoordinates(lat, lng); err != nil {
		s.mu.Lock()
		s.selection.SearchStatus = SearchIdle
		s.mu.Unlock()
		s.notify()
		return err
	}

	point := domain.Location{Lat: lat, Lng: lng}

	s.mu.Lock()
	s.selection.LocationInput = &point
	s.selection.SearchStatus = SearchSearching
	farms := s.farms
	s.mu.Unlock()
	s.notify()

	farm, dist, ok := domain.NearestFarm(farms, point)
	if !ok {
		s.mu.Lock()
		s.selection.Farm = nil
		s.selection.Crop = nil
		s.clearDatasetsLocked()
		s.selection.SearchStatus = SearchNotFound
		s.mu.Unlock()
		s.logger.Debug("no farm near search point", "lat", lat, "lng", lng, "nearestKm", dist)
		s.notify()
		return nil
	}

	s.SetFarm(farm)

	s.mu.Lock()
	s.selection.LocationInput = &point
	s.selection.SearchStatus = SearchSuccess
	s.mu.Unlock()
	s.logger.Debug("search resolved to farm", "farm", farm.ID, "distanceKm", dist)
	s.notify()
	return nil
}

// SetOverlay switches the active overlay. Loaded grid data is preserved
// across switches.
func (s *Store) SetOverlay(o Overlay) {
	s.mu.Lock()
	s.overlay = o
	s.mu.Unlock()
	s.metrics.OverlayActivations.WithLabelValues(string(o)).Inc()
	s.notify()
}

// Overlay returns the active overlay.
func (s *Store) Overlay() Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

// Selection returns a copy of the current selection.
func (s *Store) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// SelectedPair returns the active farm and crop ids, empty when unset.
func (s *Store) SelectedPair() (farmID, cropID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection.Farm != nil {
		farmID = s.selection.Farm.ID
	}
	if s.selection.Crop != nil {
		cropID = s.selection.Crop.ID
	}
	return farmID, cropID
}

// SetLoading flips the foreground loading flag.
func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
	s.notify()
}

// SetError publishes a user-facing failure. Passing nil clears it.
func (s *Store) SetError(e *ErrorState) {
	s.mu.Lock()
	s.err = e
	s.mu.Unlock()
	s.notify()
}

// ReplaceBoundaries swaps in the boundary list for a (farm, crop) pair.
// The list is replaced wholesale; it is dropped unapplied when the
// selection has moved to a different pair since the load started.
func (s *Store) ReplaceBoundaries(farmID, cropID string, boundaries []domain.FieldBoundary) bool {
	s.mu.Lock()
	if !s.pairMatchesLocked(farmID, cropID) {
		s.mu.Unlock()
		s.dropStale("boundaries", farmID, cropID)
		return false
	}
	s.boundaries = boundaries
	s.mu.Unlock()
	s.notify()
	return true
}

// PublishKPI applies a KPI summary if the pair is still selected.
func (s *Store) PublishKPI(farmID, cropID string, kpi domain.KPISummary) bool {
	s.mu.Lock()
	if !s.pairMatchesLocked(farmID, cropID) {
		s.mu.Unlock()
		s.dropStale("kpi", farmID, cropID)
		return false
	}
	s.kpi = &kpi
	s.mu.Unlock()
	s.notify()
	return true
}

// PublishNDVIGrid applies a grid if its field is still in the boundary
// list. Later results overwrite earlier ones for the same field.
func (s *Store) PublishNDVIGrid(fieldID string, grid domain.NDVIGrid) bool {
	return s.publishField("ndvi_grid", fieldID, func() {
		s.ndviGrids[fieldID] = grid
	})
}

// PublishStressIndex applies a stress grid if its field is still current.
func (s *Store) PublishStressIndex(fieldID string, idx domain.StressIndex) bool {
	return s.publishField("stress_index", fieldID, func() {
		s.stressGrids[fieldID] = idx
	})
}

// PublishNDVITimeline applies a timeline if its field is still current.
func (s *Store) PublishNDVITimeline(fieldID string, series []domain.TimeSeriesPoint) bool {
	return s.publishField("ndvi_timeline", fieldID, func() {
		s.ndviTimeline[fieldID] = series
	})
}

// PublishSoilMoisture applies a series if its field is still current.
func (s *Store) PublishSoilMoisture(fieldID string, series []domain.SoilMoisturePoint) bool {
	return s.publishField("soil_moisture", fieldID, func() {
		s.soilMoisture[fieldID] = series
	})
}

// PublishYield applies a series if its field is still current.
func (s *Store) PublishYield(fieldID string, series []domain.YieldPredictionPoint) bool {
	return s.publishField("yield_prediction", fieldID, func() {
		s.yield[fieldID] = series
	})
}

// PublishCarbon applies a series if its field is still current.
func (s *Store) PublishCarbon(fieldID string, series []domain.CarbonMetricsPoint) bool {
	return s.publishField("carbon_metrics", fieldID, func() {
		s.carbon[fieldID] = series
	})
}

// PublishWeather applies a series if its field is still current.
func (s *Store) PublishWeather(fieldID string, series []domain.WeatherPoint) bool {
	return s.publishField("weather", fieldID, func() {
		s.weather[fieldID] = series
	})
}

// publishField runs apply under the lock iff fieldID is still in the
// boundary list. Stale results are counted and dropped, never cancelled
// upstream.
func (s *Store) publishField(dataset, fieldID string, apply func()) bool {
	s.mu.Lock()
	if !s.fieldCurrentLocked(fieldID) {
		s.mu.Unlock()
		s.dropStale(dataset, fieldID, "")
		return false
	}
	apply()
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Store) pairMatchesLocked(farmID, cropID string) bool {
	return s.selection.Farm != nil && s.selection.Farm.ID == farmID &&
		s.selection.Crop != nil && s.selection.Crop.ID == cropID
}

func (s *Store) fieldCurrentLocked(fieldID string) bool {
	for _, b := range s.boundaries {
		if b.ID == fieldID {
			return true
		}
	}
	return false
}

func (s *Store) dropStale(dataset, id, extra string) {
	s.metrics.StaleResultsDropped.Inc()
	s.logger.Debug("dropping stale result", "dataset", dataset, "id", id, "pairCrop", extra)
}

// Boundaries returns the current boundary list.
func (s *Store) Boundaries() []domain.FieldBoundary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundaries
}

// HasNDVIGrid reports whether a grid is already loaded for the field.
func (s *Store) HasNDVIGrid(fieldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ndviGrids[fieldID]
	return ok
}

// HasStressIndex reports whether a stress grid is loaded for the field.
func (s *Store) HasStressIndex(fieldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stressGrids[fieldID]
	return ok
}

// HasNDVITimeline reports whether a timeline is loaded for the field.
func (s *Store) HasNDVITimeline(fieldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ndviTimeline[fieldID]
	return ok
}
