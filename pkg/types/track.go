package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TrackFeature is a GeoJSON Feature wrapping a LineString, the format the
// content API accepts for recorded tracks.
type TrackFeature struct {
	Type       string         `json:"type"`
	Geometry   TrackGeometry  `json:"geometry"`
	Properties map[string]any `json:"properties,omitempty"`
}

type TrackGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// NewTrackFeature builds a LineString feature from ordered points.
func NewTrackFeature(points []GeoPoint, properties map[string]any) *TrackFeature {
	coords := make([][]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, p.Position())
	}
	return &TrackFeature{
		Type:       "Feature",
		Geometry:   TrackGeometry{Type: "LineString", Coordinates: coords},
		Properties: properties,
	}
}

// Validate checks the GeoJSON shape.
func (t *TrackFeature) Validate() error {
	if t == nil {
		return fmt.Errorf("track: nil feature")
	}
	if t.Type != "Feature" {
		return fmt.Errorf("track: expected Feature, got %q", t.Type)
	}
	if t.Geometry.Type != "LineString" {
		return fmt.Errorf("track: expected LineString geometry, got %q", t.Geometry.Type)
	}
	if len(t.Geometry.Coordinates) < 2 {
		return fmt.Errorf("track: a line needs at least two positions")
	}
	for i, pos := range t.Geometry.Coordinates {
		if len(pos) < 2 {
			return fmt.Errorf("track: position %d has %d values", i, len(pos))
		}
		if !(GeoPoint{Lat: pos[1], Lng: pos[0]}).Valid() {
			return fmt.Errorf("track: position %d out of range", i)
		}
	}
	return nil
}

// Value stores the feature as JSON text.
func (t *TrackFeature) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("track: marshal: %w", err)
	}
	return string(b), nil
}

// Scan reads the JSON text written by Value.
func (t *TrackFeature) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*t = TrackFeature{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("track: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*t = TrackFeature{}
		return nil
	}
	return json.Unmarshal(raw, t)
}
