package legacy

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/pkg/enums"
	"github.com/angelmondragon/draftsync/pkg/types"
	"github.com/google/uuid"
)

var (
	errMalformed = errors.New("malformed legacy record")

	// clientIDNamespace makes derived client ids stable across re-runs.
	clientIDNamespace = uuid.MustParse("6f1d3a52-7c0e-4f43-9a55-2d1b8c9e4a10")
)

// Convert turns a legacy record into a draft. Missing required fields or
// unparsable values yield an error wrapping errMalformed.
func Convert(contentType enums.ContentType, rec Record) (drafts.NewDraft, error) {
	if rec == nil {
		return drafts.NewDraft{}, fmt.Errorf("%w: not an object", errMalformed)
	}

	var (
		content drafts.Content
		err     error
	)
	switch contentType {
	case enums.ContentTypePost:
		content, err = convertPost(rec)
	case enums.ContentTypeMarker:
		content, err = convertMarker(rec)
	case enums.ContentTypeRoute:
		content, err = convertRoute(rec)
	case enums.ContentTypeEvent:
		content, err = convertEvent(rec)
	default:
		err = fmt.Errorf("%w: unknown content type %q", errMalformed, contentType)
	}
	if err != nil {
		return drafts.NewDraft{}, err
	}

	nd := drafts.NewDraft{
		Content:  content,
		RegionID: optString(rec, "regionId", "region_id", "region"),
		ClientID: str(rec, "clientId", "client_id"),
	}
	if nd.ClientID == "" {
		nd.ClientID = deriveClientID(contentType, rec)
	}
	if created, ok := timeValue(rec, "createdAt", "created_at", "timestamp"); ok {
		nd.CreatedAt = created
	}

	nd.Attachments, err = attachments(rec)
	if err != nil {
		return drafts.NewDraft{}, err
	}
	nd.Track, err = track(rec)
	if err != nil {
		return drafts.NewDraft{}, err
	}

	if str(rec, "status") == string(enums.DraftStatusFailed) {
		nd.Status = enums.DraftStatusFailed
	}
	session := drafts.OfflineSession{NetworkStatus: enums.NetworkStatusOffline}
	if n, ok := number(rec, "offlineEdits"); ok {
		session.OfflineEdits = int(n)
	}
	if modified, ok := timeValue(rec, "lastModified", "updatedAt"); ok {
		session.LastModified = modified
	}
	nd.Session = &session
	return nd, nil
}

func convertPost(rec Record) (drafts.Content, error) {
	text := str(rec, "text", "content", "body")
	if text == "" {
		return nil, fmt.Errorf("%w: post without text", errMalformed)
	}
	return drafts.PostContent{
		Text:           text,
		Title:          optString(rec, "title"),
		LinkedRouteID:  optString(rec, "linkedRouteId", "routeId"),
		LinkedMarkerID: optString(rec, "linkedMarkerId", "markerId"),
		LinkedEventID:  optString(rec, "linkedEventId", "eventId"),
	}, nil
}

func convertMarker(rec Record) (drafts.Content, error) {
	point, err := location(rec)
	if err != nil {
		return nil, err
	}
	category := str(rec, "category", "type")
	if category == "" {
		category = "other"
	}
	return drafts.MarkerContent{
		Title:       str(rec, "title", "name"),
		Description: optString(rec, "description"),
		Latitude:    point.Lat,
		Longitude:   point.Lng,
		Category:    category,
		Hashtags:    stringList(rec, "hashtags", "tags"),
		Address:     optString(rec, "address"),
	}, nil
}

func convertRoute(rec Record) (drafts.Content, error) {
	rawPoints, ok := rec["points"].([]any)
	if !ok {
		rawPoints, ok = rec["coordinates"].([]any)
	}
	if !ok {
		return nil, fmt.Errorf("%w: route without points", errMalformed)
	}
	points := make([]types.GeoPoint, 0, len(rawPoints))
	for i, raw := range rawPoints {
		p, err := pointValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: route point %d: %v", errMalformed, i, err)
		}
		points = append(points, p)
	}

	var waypoints []drafts.Waypoint
	if rawWaypoints, ok := rec["waypoints"].([]any); ok {
		for i, raw := range rawWaypoints {
			obj, _ := raw.(map[string]any)
			p, err := pointValue(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: waypoint %d: %v", errMalformed, i, err)
			}
			wp := drafts.Waypoint{Point: p}
			if obj != nil {
				wp.Name = str(obj, "name", "title")
				wp.Description = optString(obj, "description")
			}
			waypoints = append(waypoints, wp)
		}
	}

	route := drafts.RouteContent{
		Title:       str(rec, "title", "name"),
		Description: optString(rec, "description"),
		Points:      points,
		Waypoints:   waypoints,
		Tags:        stringList(rec, "tags", "hashtags"),
	}
	if v, ok := number(rec, "totalDistance", "distance"); ok {
		route.TotalDistance = &v
	}
	if v, ok := number(rec, "duration"); ok {
		route.Duration = &v
	}
	return route, nil
}

func convertEvent(rec Record) (drafts.Content, error) {
	start, ok := timeValue(rec, "startAt", "startDate", "start")
	if !ok {
		return nil, fmt.Errorf("%w: event without start", errMalformed)
	}
	end, ok := timeValue(rec, "endAt", "endDate", "end")
	if !ok {
		end = start
	}
	event := drafts.EventContent{
		Title:       str(rec, "title", "name"),
		Description: optString(rec, "description"),
		StartAt:     start,
		EndAt:       end,
		Location:    optString(rec, "location", "venue"),
		Category:    optString(rec, "category"),
		Hashtags:    stringList(rec, "hashtags", "tags"),
		Organizer:   optString(rec, "organizer"),
	}
	if point, err := location(rec); err == nil {
		event.Latitude = &point.Lat
		event.Longitude = &point.Lng
	}
	return event, nil
}

func location(rec Record) (types.GeoPoint, error) {
	lat, okLat := number(rec, "latitude", "lat")
	lng, okLng := number(rec, "longitude", "lng", "lon")
	if okLat && okLng {
		return types.GeoPoint{Lat: lat, Lng: lng}, nil
	}
	if raw, ok := rec["location"].(string); ok {
		if p, err := types.ParseGeoPoint(raw); err == nil {
			return p, nil
		}
	}
	if raw, ok := rec["coordinates"]; ok {
		return pointValue(raw)
	}
	return types.GeoPoint{}, fmt.Errorf("%w: missing coordinates", errMalformed)
}

// pointValue accepts {lat,lng} objects, [lat,lng] pairs and point strings.
func pointValue(raw any) (types.GeoPoint, error) {
	switch v := raw.(type) {
	case map[string]any:
		lat, okLat := number(v, "lat", "latitude")
		lng, okLng := number(v, "lng", "longitude", "lon")
		if !okLat || !okLng {
			return types.GeoPoint{}, fmt.Errorf("point object without lat/lng")
		}
		return types.GeoPoint{Lat: lat, Lng: lng}, nil
	case []any:
		if len(v) < 2 {
			return types.GeoPoint{}, fmt.Errorf("point pair too short")
		}
		lat, okLat := toFloat(v[0])
		lng, okLng := toFloat(v[1])
		if !okLat || !okLng {
			return types.GeoPoint{}, fmt.Errorf("point pair not numeric")
		}
		return types.GeoPoint{Lat: lat, Lng: lng}, nil
	case string:
		return types.ParseGeoPoint(v)
	default:
		return types.GeoPoint{}, fmt.Errorf("unsupported point %T", raw)
	}
}

func attachments(rec Record) ([]drafts.Attachment, error) {
	raw, ok := rec["images"].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]drafts.Attachment, 0, len(raw))
	for i, item := range raw {
		encoded, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: image %d is not a string", errMalformed, i)
		}
		mime := "application/octet-stream"
		if strings.HasPrefix(encoded, "data:") {
			header, body, found := strings.Cut(encoded, ",")
			if !found {
				return nil, fmt.Errorf("%w: image %d has no data", errMalformed, i)
			}
			mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
			encoded = body
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", errMalformed, i, err)
		}
		out = append(out, drafts.Attachment{
			Name:     fmt.Sprintf("image-%d", i+1),
			MimeType: mime,
			Data:     data,
		})
	}
	return out, nil
}

func track(rec Record) (*types.TrackFeature, error) {
	raw, ok := rec["track"]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: track: %v", errMalformed, err)
	}
	var feature types.TrackFeature
	if err := json.Unmarshal(b, &feature); err != nil {
		return nil, fmt.Errorf("%w: track: %v", errMalformed, err)
	}
	return &feature, nil
}

func deriveClientID(contentType enums.ContentType, rec Record) string {
	key := str(rec, "id")
	if key == "" {
		// encoding/json sorts map keys, so the encoding is stable
		b, _ := json.Marshal(rec)
		key = string(b)
	}
	return uuid.NewSHA1(clientIDNamespace, []byte(string(contentType)+":"+key)).String()
}

func str(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func optString(rec map[string]any, keys ...string) *string {
	if s := str(rec, keys...); s != "" {
		return &s
	}
	return nil
}

func number(rec map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(rec[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// timeValue accepts RFC3339 strings and unix epoch milliseconds.
func timeValue(rec map[string]any, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
				return t.UTC(), true
			}
		case float64:
			return time.UnixMilli(int64(v)).UTC(), true
		}
	}
	return time.Time{}, false
}

func stringList(rec map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			return out
		case string:
			fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
			if len(fields) > 0 {
				return fields
			}
		}
	}
	return nil
}
