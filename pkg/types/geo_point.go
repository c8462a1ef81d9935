package types

import (
	"fmt"
	"strconv"
	"strings"
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// Valid reports whether both coordinates are in range.
func (g GeoPoint) Valid() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lng >= -180 && g.Lng <= 180
}

// Position returns the GeoJSON [lng, lat] ordering.
func (g GeoPoint) Position() []float64 {
	return []float64{g.Lng, g.Lat}
}

// ParseGeoPoint accepts WKT/EWKT ("SRID=4326;POINT(lng lat)") or a
// "lat,lng" pair.
func ParseGeoPoint(raw string) (GeoPoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return GeoPoint{}, fmt.Errorf("geo: empty point")
	}

	if strings.HasPrefix(strings.ToUpper(raw), "SRID=") {
		if idx := strings.Index(raw, ";"); idx != -1 {
			raw = strings.TrimSpace(raw[idx+1:])
		}
	}

	if strings.HasPrefix(strings.ToUpper(raw), "POINT(") && strings.HasSuffix(raw, ")") {
		content := strings.TrimSpace(raw[len("POINT(") : len(raw)-1])
		segments := strings.Fields(content)
		if len(segments) != 2 {
			return GeoPoint{}, fmt.Errorf("geo: unexpected POINT content %q", content)
		}
		lng, err := parseCoordinate(segments[0])
		if err != nil {
			return GeoPoint{}, err
		}
		lat, err := parseCoordinate(segments[1])
		if err != nil {
			return GeoPoint{}, err
		}
		return checked(GeoPoint{Lat: lat, Lng: lng})
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return GeoPoint{}, fmt.Errorf("geo: unsupported point %q", raw)
	}
	lat, err := parseCoordinate(parts[0])
	if err != nil {
		return GeoPoint{}, err
	}
	lng, err := parseCoordinate(parts[1])
	if err != nil {
		return GeoPoint{}, err
	}
	return checked(GeoPoint{Lat: lat, Lng: lng})
}

func checked(p GeoPoint) (GeoPoint, error) {
	if !p.Valid() {
		return GeoPoint{}, fmt.Errorf("geo: point out of range (%f, %f)", p.Lat, p.Lng)
	}
	return p, nil
}

func parseCoordinate(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("geo: empty coordinate")
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("geo: parse coordinate %w", err)
	}
	return f, nil
}
