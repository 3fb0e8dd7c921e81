// Package domain models the dashboard's view of the agronomy backend.
//
// # Data Source
//
// All derived values (NDVI, stress index, soil moisture, yield prediction,
// carbon metrics, KPI summaries) are computed by an external analytics
// backend and consumed here as typed HTTP responses. This package only
// defines the wire shapes, the cache fingerprinting rules, and the small
// amount of geometry the dashboard computes locally.
//
// # Wire Conventions
//
// Every backend response shares one envelope:
//
//	{ "data": ..., "timestamp": "...", "status": "success"|"error", "message": "..." }
//
// A non-"success" status is a failure regardless of payload shape, and the
// envelope (not the inner data) is the unit stored by the response cache.
//
// Coordinates are WGS-84; the backend serializes longitude as "lng".
// Field geometry is GeoJSON (Polygon or MultiPolygon) with positions in
// [lng, lat] order.
//
// # Cache Fingerprints
//
// A fetch is identified by its fingerprint: the endpoint path plus the
// sorted query string ("<path>?<sorted-query>"). Two fetches with the same
// fingerprint request the same logical value, whatever order the caller
// added the parameters in. See [Fingerprint].
//
// # Grids
//
// NDVI and stress grids are 2-D scalar arrays over a geographic bounding
// box. Row 0 is the northernmost row. [SubdivideGrid] converts a grid into
// axis-aligned cells for rendering; [NDVIColor] and [StressColor] map cell
// values onto the fixed 5-band color scales the dashboard's heatmaps use.
package domain
