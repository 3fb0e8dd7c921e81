package domain

// GridCell is one axis-aligned cell of a subdivided grid, tagged with its
// scalar value for color-scale mapping.
type GridCell struct {
	Row    int
	Col    int
	Bounds GridBounds
	Value  float64
}

// SubdivideGrid converts a grid into rows x cols equal geographic cells by
// linearly subdividing the bounding box. Row 0 is the northernmost row.
// Ragged or empty value arrays yield no cells for the missing positions.
func SubdivideGrid(g GridData) []GridCell {
	rows := len(g.Values)
	if rows == 0 {
		return nil
	}
	cols := len(g.Values[0])
	if cols == 0 {
		return nil
	}

	latSpan := (g.Bounds.North - g.Bounds.South) / float64(rows)
	lngSpan := (g.Bounds.East - g.Bounds.West) / float64(cols)

	cells := make([]GridCell, 0, rows*cols)
	for r, row := range g.Values {
		for c := range row {
			if c >= cols {
				break
			}
			cells = append(cells, GridCell{
				Row: r,
				Col: c,
				Bounds: GridBounds{
					North: g.Bounds.North - float64(r)*latSpan,
					South: g.Bounds.North - float64(r+1)*latSpan,
					West:  g.Bounds.West + float64(c)*lngSpan,
					East:  g.Bounds.West + float64(c+1)*lngSpan,
				},
				Value: row[c],
			})
		}
	}
	return cells
}

// NDVI color scale, fixed 5-band mapping.
const (
	ColorNDVIBareSoil = "#8B4513" // brown, [0, 0.2)
	ColorNDVISparse   = "#DAA520" // goldenrod, [0.2, 0.4)
	ColorNDVIModerate = "#9ACD32" // yellow-green, [0.4, 0.6)
	ColorNDVIHealthy  = "#32CD32" // lime green, [0.6, 0.8)
	ColorNDVIDense    = "#228B22" // forest green, [0.8, 1.0]
)

// Stress color scale, fixed 4-band mapping.
const (
	ColorStressLow      = "#22C55E" // green, [0, 0.3)
	ColorStressModerate = "#EAB308" // yellow, [0.3, 0.5)
	ColorStressHigh     = "#F97316" // orange, [0.5, 0.7)
	ColorStressSevere   = "#EF4444" // red, [0.7, 1.0]
)

// NDVIColor maps an NDVI value onto the fixed 5-band scale.
func NDVIColor(v float64) string {
	switch {
	case v < 0.2:
		return ColorNDVIBareSoil
	case v < 0.4:
		return ColorNDVISparse
	case v < 0.6:
		return ColorNDVIModerate
	case v < 0.8:
		return ColorNDVIHealthy
	default:
		return ColorNDVIDense
	}
}

// StressColor maps a stress-index value onto the fixed 4-band scale.
func StressColor(v float64) string {
	switch {
	case v < 0.3:
		return ColorStressLow
	case v < 0.5:
		return ColorStressModerate
	case v < 0.7:
		return ColorStressHigh
	default:
		return ColorStressSevere
	}
}
