package maplayer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/observability"
	"github.com/ai-labc/cropai/internal/state"
)

type fakeLoader struct {
	ndvi   []string
	stress []string
}

func (f *fakeLoader) LoadNDVIGrid(_ context.Context, fieldID string) {
	f.ndvi = append(f.ndvi, fieldID)
}

func (f *fakeLoader) LoadStressIndex(_ context.Context, fieldID string) {
	f.stress = append(f.stress, fieldID)
}

func newTestSync(t *testing.T) (*Synchronizer, *state.Store, *fakeLoader) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := state.NewStore(logger, observability.NewMetricsForTesting())
	loader := &fakeLoader{}
	return NewSynchronizer(st, loader, logger), st, loader
}

func seedBoundaries(st *state.Store) {
	farm := domain.Farm{ID: "farm-1", DefaultCropID: "crop-1"}
	st.SetFarms([]domain.Farm{farm})
	st.SetCrops([]domain.Crop{{ID: "crop-1"}})
	st.SetFarm(farm)
	st.ReplaceBoundaries("farm-1", "crop-1", []domain.FieldBoundary{
		{ID: "field-1", FarmID: "farm-1", CropID: "crop-1"},
		{ID: "field-2", FarmID: "farm-1", CropID: "crop-1"},
	})
}

func testGrid() domain.GridData {
	return domain.GridData{
		Bounds: domain.GridBounds{North: 1, South: 0, East: 1, West: 0},
		Values: [][]float64{
			{0.1, 0.5},
			{0.7, 0.9},
		},
	}
}

func TestSynchronizer_ActivateLoadsMissingGrids(t *testing.T) {
	sync, st, loader := newTestSync(t)
	seedBoundaries(st)
	st.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1", Grid: testGrid()})

	require.NoError(t, sync.Activate(context.Background(), state.OverlayNDVI))

	assert.Equal(t, state.OverlayNDVI, st.Overlay())
	assert.Equal(t, []string{"field-2"}, loader.ndvi, "only the missing grid is requested")
	assert.Empty(t, loader.stress)
}

func TestSynchronizer_ActivateStress(t *testing.T) {
	sync, st, loader := newTestSync(t)
	seedBoundaries(st)

	require.NoError(t, sync.Activate(context.Background(), state.OverlayStress))

	assert.ElementsMatch(t, []string{"field-1", "field-2"}, loader.stress)
}

func TestSynchronizer_ActivateRejectsUnknownOverlay(t *testing.T) {
	sync, st, _ := newTestSync(t)

	err := sync.Activate(context.Background(), state.Overlay("heatmap"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrValidation, domain.KindOf(err))
	assert.Equal(t, state.OverlayBoundaries, st.Overlay(), "overlay unchanged on bad input")
}

func TestSynchronizer_CellsRendersOnlyResolvedFields(t *testing.T) {
	sync, st, _ := newTestSync(t)
	seedBoundaries(st)
	st.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1", Grid: testGrid()})

	require.NoError(t, sync.Activate(context.Background(), state.OverlayNDVI))

	cells := sync.Cells()
	require.Len(t, cells, 4, "field-2 has no grid yet so it is not drawn")
	for _, c := range cells {
		assert.Equal(t, "field-1", c.FieldID)
	}

	// Row 0 is the northern half; value 0.1 maps to the bare-soil band.
	assert.Equal(t, domain.ColorNDVIBareSoil, cells[0].Color)
	assert.InDelta(t, 1.0, cells[0].Bounds.North, 1e-9)
	assert.InDelta(t, 0.5, cells[0].Bounds.South, 1e-9)
	assert.Equal(t, domain.ColorNDVIDense, cells[3].Color)
}

func TestSynchronizer_CellsStressScale(t *testing.T) {
	sync, st, _ := newTestSync(t)
	seedBoundaries(st)
	st.PublishStressIndex("field-1", domain.StressIndex{FieldID: "field-1", Grid: testGrid()})

	require.NoError(t, sync.Activate(context.Background(), state.OverlayStress))

	cells := sync.Cells()
	require.Len(t, cells, 4)
	assert.Equal(t, domain.ColorStressLow, cells[0].Color)    // 0.1
	assert.Equal(t, domain.ColorStressHigh, cells[1].Color)   // 0.5
	assert.Equal(t, domain.ColorStressSevere, cells[2].Color) // 0.7
	assert.Equal(t, domain.ColorStressSevere, cells[3].Color) // 0.9
}

func TestSynchronizer_SwitchPreservesData(t *testing.T) {
	sync, st, loader := newTestSync(t)
	seedBoundaries(st)
	st.PublishNDVIGrid("field-1", domain.NDVIGrid{FieldID: "field-1", Grid: testGrid()})
	st.PublishNDVIGrid("field-2", domain.NDVIGrid{FieldID: "field-2", Grid: testGrid()})

	require.NoError(t, sync.Activate(context.Background(), state.OverlayNDVI))
	require.NoError(t, sync.Activate(context.Background(), state.OverlayBoundaries))
	assert.Empty(t, sync.Cells(), "boundary overlay draws no cells")

	// Flipping back renders instantly from kept data, no new loads.
	require.NoError(t, sync.Activate(context.Background(), state.OverlayNDVI))
	assert.Len(t, sync.Cells(), 8)
	assert.Empty(t, loader.ndvi)
}
