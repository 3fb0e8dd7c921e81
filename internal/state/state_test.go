package state

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/observability"
)

func newTestStore() *Store {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(logger, observability.NewMetricsForTesting())
}

var (
	testFarm1 = domain.Farm{
		ID: "farm-1", Name: "Hartland Colony",
		Location:      domain.Location{Lat: 52.619167, Lng: -113.092639},
		Area:          250.5,
		DefaultCropID: "crop-1",
	}
	testFarm2 = domain.Farm{
		ID: "farm-2", Name: "Exceedagro Reference Field",
		Location:      domain.Location{Lat: 54.0167, Lng: -124.0167},
		Area:          180.3,
		DefaultCropID: "crop-2",
	}
	testCrop1 = domain.Crop{ID: "crop-1", Name: "Canola", Type: "Oilseed"}
	testCrop2 = domain.Crop{ID: "crop-2", Name: "Timothy Hay", Type: "Forage"}
)

func seedStore(s *Store) {
	s.SetFarms([]domain.Farm{testFarm1, testFarm2})
	s.SetCrops([]domain.Crop{testCrop1, testCrop2})
}

func TestStore_SetFarmIsAtomic(t *testing.T) {
	s := newTestStore()
	seedStore(s)

	s.SetFarm(testFarm1)
	s.ReplaceBoundaries("farm-1", "crop-1", []domain.FieldBoundary{{ID: "field-1", FarmID: "farm-1", CropID: "crop-1"}})
	require.True(t, s.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1"}))
	s.SetOverlay(OverlayNDVI)
	require.True(t, s.PublishKPI("farm-1", "crop-1", domain.KPISummary{ProductivityIncrease: 12}))

	s.SetFarm(testFarm2)

	snap := s.Snapshot()
	require.NotNil(t, snap.Selection.Farm)
	assert.Equal(t, "farm-2", snap.Selection.Farm.ID)
	require.NotNil(t, snap.Selection.Crop, "default crop selected with the farm")
	assert.Equal(t, "crop-2", snap.Selection.Crop.ID)
	assert.Empty(t, snap.Boundaries)
	assert.Empty(t, snap.NDVIGrids)
	assert.Nil(t, snap.KPI)
	assert.Equal(t, OverlayBoundaries, snap.Overlay, "overlay resets on farm switch")
}

func TestStore_SetFarmWithoutDefaultCrop(t *testing.T) {
	s := newTestStore()
	seedStore(s)

	s.SetFarm(domain.Farm{ID: "farm-3", Name: "Orphan"})

	snap := s.Snapshot()
	require.NotNil(t, snap.Selection.Farm)
	assert.Nil(t, snap.Selection.Crop)
}

func TestStore_SetCropClearsFieldData(t *testing.T) {
	s := newTestStore()
	seedStore(s)
	s.SetFarm(testFarm1)
	s.ReplaceBoundaries("farm-1", "crop-1", []domain.FieldBoundary{{ID: "field-1"}})
	s.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1"})

	s.SetCrop(testCrop2)

	snap := s.Snapshot()
	require.NotNil(t, snap.Selection.Crop)
	assert.Equal(t, "crop-2", snap.Selection.Crop.ID)
	require.NotNil(t, snap.Selection.Farm, "farm survives a crop switch")
	assert.Empty(t, snap.Boundaries)
	assert.Empty(t, snap.NDVIGrids)
}

func TestStore_FindNearestFarm(t *testing.T) {
	s := newTestStore()
	seedStore(s)

	// A point a few hundred meters from farm-1.
	err := s.FindNearestFarm(52.62, -113.09)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, SearchSuccess, snap.Selection.SearchStatus)
	require.NotNil(t, snap.Selection.Farm)
	assert.Equal(t, "farm-1", snap.Selection.Farm.ID)
	require.NotNil(t, snap.Selection.Crop)
	assert.Equal(t, "crop-1", snap.Selection.Crop.ID)
	require.NotNil(t, snap.Selection.LocationInput, "typed point kept for recentering")
	assert.InDelta(t, 52.62, snap.Selection.LocationInput.Lat, 1e-9)
}

func TestStore_FindNearestFarmBeyondRadius(t *testing.T) {
	s := newTestStore()
	seedStore(s)
	s.SetFarm(testFarm1)
	s.ReplaceBoundaries("farm-1", "crop-1", []domain.FieldBoundary{{ID: "field-1", FarmID: "farm-1", CropID: "crop-1"}})
	require.True(t, s.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1"}))

	err := s.FindNearestFarm(0, 0)
	require.NoError(t, err, "no farm in range is not an error")

	snap := s.Snapshot()
	assert.Equal(t, SearchNotFound, snap.Selection.SearchStatus)
	assert.Nil(t, snap.Selection.Farm, "selection cleared on not-found")
	assert.Nil(t, snap.Selection.Crop)
	assert.Empty(t, snap.Boundaries)
	assert.Empty(t, snap.NDVIGrids)
	assert.Nil(t, snap.KPI)
	require.NotNil(t, snap.Selection.LocationInput, "typed point kept for recentering")
	assert.InDelta(t, 0, snap.Selection.LocationInput.Lat, 1e-9)
	assert.InDelta(t, 0, snap.Selection.LocationInput.Lng, 1e-9)
}

func TestStore_FindNearestFarmRejectsBadCoordinates(t *testing.T) {
	s := newTestStore()
	seedStore(s)

	err := s.FindNearestFarm(91, 0)
	require.Error(t, err)
	assert.Equal(t, domain.ErrValidation, domain.KindOf(err))

	err = s.FindNearestFarm(0, -181)
	require.Error(t, err)
}

func TestStore_StaleBoundariesDropped(t *testing.T) {
	s := newTestStore()
	seedStore(s)
	s.SetFarm(testFarm1)

	// Selection moves on before the farm-1 boundary load resolves.
	s.SetFarm(testFarm2)

	applied := s.ReplaceBoundaries("farm-1", "crop-1", []domain.FieldBoundary{{ID: "field-1"}})
	assert.False(t, applied)
	assert.Empty(t, s.Boundaries())
}

func TestStore_StaleFieldResultDropped(t *testing.T) {
	s := newTestStore()
	seedStore(s)
	s.SetFarm(testFarm1)
	s.ReplaceBoundaries("farm-1", "crop-1", []domain.FieldBoundary{{ID: "field-1"}})

	s.SetFarm(testFarm2)

	applied := s.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1"})
	assert.False(t, applied)
	assert.False(t, s.HasNDVIGrid("field-1"))
}

func TestStore_LastResolvedWins(t *testing.T) {
	s := newTestStore()
	seedStore(s)
	s.SetFarm(testFarm1)
	s.ReplaceBoundaries("farm-1", "crop-1", []domain.FieldBoundary{{ID: "field-1"}})

	require.True(t, s.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1", Timestamp: "first"}))
	require.True(t, s.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1", Timestamp: "second"}))

	snap := s.Snapshot()
	assert.Equal(t, "second", snap.NDVIGrids["field-1"].Timestamp)
}

func TestStore_StaleKPIDropped(t *testing.T) {
	s := newTestStore()
	seedStore(s)
	s.SetFarm(testFarm1)
	s.SetCrop(testCrop2)

	applied := s.PublishKPI("farm-1", "crop-1", domain.KPISummary{})
	assert.False(t, applied)
	assert.Nil(t, s.Snapshot().KPI)
}

func TestStore_OverlaySwitchPreservesData(t *testing.T) {
	s := newTestStore()
	seedStore(s)
	s.SetFarm(testFarm1)
	s.ReplaceBoundaries("farm-1", "crop-1", []domain.FieldBoundary{{ID: "field-1"}})
	s.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1"})

	s.SetOverlay(OverlayStress)
	assert.True(t, s.HasNDVIGrid("field-1"), "grid data survives overlay switches")

	s.SetOverlay(OverlayNDVI)
	assert.Equal(t, OverlayNDVI, s.Overlay())
	assert.True(t, s.HasNDVIGrid("field-1"))
}

func TestStore_SubscriberSeesAppliedMutations(t *testing.T) {
	s := newTestStore()

	var last Snapshot
	var count int
	s.Subscribe(func(snap Snapshot) {
		last = snap
		count++
	})

	seedStore(s)
	s.SetFarm(testFarm1)

	assert.GreaterOrEqual(t, count, 3)
	require.NotNil(t, last.Selection.Farm)
	assert.Equal(t, "farm-1", last.Selection.Farm.ID)
}

func TestStore_ErrorStateRetryHook(t *testing.T) {
	s := newTestStore()

	retried := false
	s.SetError(&ErrorState{Message: "farms failed to load", Retry: func() { retried = true }})

	snap := s.Snapshot()
	require.NotNil(t, snap.Error)
	assert.Equal(t, "farms failed to load", snap.Error.Message)
	snap.Error.Retry()
	assert.True(t, retried)

	s.SetError(nil)
	assert.Nil(t, s.Snapshot().Error)
}
