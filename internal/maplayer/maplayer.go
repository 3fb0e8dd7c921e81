// Package maplayer keeps the map overlays in sync with the selection: it
// switches the active overlay, triggers grid loads for boundaries that
// have no data yet, and renders the colored cells for whatever has
// resolved so far. Fields without a resolved grid are simply not drawn;
// the overlay never blocks on a load.
package maplayer

import (
	"context"
	"log/slog"

	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/state"
)

// GridLoader is the slice of the orchestrator the synchronizer needs.
type GridLoader interface {
	LoadNDVIGrid(ctx context.Context, fieldID string)
	LoadStressIndex(ctx context.Context, fieldID string)
}

// RenderedCell is one colored rectangle ready for the map.
type RenderedCell struct {
	FieldID string            `json:"fieldId"`
	Bounds  domain.GridBounds `json:"bounds"`
	Value   float64           `json:"value"`
	Color   string            `json:"color"`
}

// Synchronizer owns overlay activation and rendering.
type Synchronizer struct {
	store  *state.Store
	loader GridLoader
	logger *slog.Logger
}

func NewSynchronizer(store *state.Store, loader GridLoader, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{store: store, loader: loader, logger: logger}
}

// Activate switches the overlay and kicks off loads for every boundary
// missing data for it. Already-loaded grids are kept, so flipping back
// to a previous overlay renders instantly.
func (s *Synchronizer) Activate(ctx context.Context, overlay state.Overlay) error {
	switch overlay {
	case state.OverlayNone, state.OverlayBoundaries, state.OverlayNDVI, state.OverlayStress:
	default:
		return domain.ValidationError("", "unknown overlay "+string(overlay))
	}

	s.store.SetOverlay(overlay)
	s.logger.Debug("overlay activated", "overlay", overlay)

	switch overlay {
	case state.OverlayNDVI:
		for _, b := range s.store.Boundaries() {
			if !s.store.HasNDVIGrid(b.ID) {
				s.loader.LoadNDVIGrid(ctx, b.ID)
			}
		}
	case state.OverlayStress:
		for _, b := range s.store.Boundaries() {
			if !s.store.HasStressIndex(b.ID) {
				s.loader.LoadStressIndex(ctx, b.ID)
			}
		}
	}
	return nil
}

// Cells renders the active overlay: every boundary whose grid has
// resolved contributes its subdivided, colored cells. Boundaries and
// none overlays render nothing here, the boundary polygons come straight
// from state.
func (s *Synchronizer) Cells() []RenderedCell {
	snap := s.store.Snapshot()

	var out []RenderedCell
	switch snap.Overlay {
	case state.OverlayNDVI:
		for _, b := range snap.Boundaries {
			grid, ok := snap.NDVIGrids[b.ID]
			if !ok {
				continue
			}
			for _, cell := range domain.SubdivideGrid(grid.Grid) {
				out = append(out, RenderedCell{
					FieldID: b.ID,
					Bounds:  cell.Bounds,
					Value:   cell.Value,
					Color:   domain.NDVIColor(cell.Value),
				})
			}
		}
	case state.OverlayStress:
		for _, b := range snap.Boundaries {
			idx, ok := snap.StressGrids[b.ID]
			if !ok {
				continue
			}
			for _, cell := range domain.SubdivideGrid(idx.Grid) {
				out = append(out, RenderedCell{
					FieldID: b.ID,
					Bounds:  cell.Bounds,
					Value:   cell.Value,
					Color:   domain.StressColor(cell.Value),
				})
			}
		}
	}
	return out
}
