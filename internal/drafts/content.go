package drafts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/draftsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/types"
	"github.com/angelmondragon/draftsync/pkg/validate"
)

// Content is the typed payload of a draft. The set of implementations is
// closed: PostContent, MarkerContent, RouteContent and EventContent.
type Content interface {
	ContentType() enums.ContentType
	content()
}

type PostContent struct {
	Text           string  `json:"text" validate:"required,max=10000"`
	Title          *string `json:"title,omitempty" validate:"omitempty,max=200"`
	LinkedRouteID  *string `json:"linkedRouteId,omitempty"`
	LinkedMarkerID *string `json:"linkedMarkerId,omitempty"`
	LinkedEventID  *string `json:"linkedEventId,omitempty"`
}

type MarkerContent struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description *string  `json:"description,omitempty"`
	Latitude    float64  `json:"latitude" validate:"latitude"`
	Longitude   float64  `json:"longitude" validate:"longitude"`
	Category    string   `json:"category" validate:"required"`
	Hashtags    []string `json:"hashtags,omitempty" validate:"omitempty,dive,required"`
	Address     *string  `json:"address,omitempty"`
}

type Waypoint struct {
	Point       types.GeoPoint `json:"point"`
	Name        string         `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
}

type RouteContent struct {
	Title         string           `json:"title" validate:"required,max=200"`
	Description   *string          `json:"description,omitempty"`
	Points        []types.GeoPoint `json:"points" validate:"min=2,dive"`
	Waypoints     []Waypoint       `json:"waypoints,omitempty" validate:"omitempty,dive"`
	TotalDistance *float64         `json:"totalDistance,omitempty" validate:"omitempty,gte=0"`
	Duration      *float64         `json:"duration,omitempty" validate:"omitempty,gte=0"`
	Tags          []string         `json:"tags,omitempty"`
}

type EventContent struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description *string   `json:"description,omitempty"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	Location    *string   `json:"location,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64  `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Category    *string   `json:"category,omitempty"`
	Hashtags    []string  `json:"hashtags,omitempty" validate:"omitempty,dive,required"`
	Organizer   *string   `json:"organizer,omitempty"`
}

func (PostContent) ContentType() enums.ContentType   { return enums.ContentTypePost }
func (MarkerContent) ContentType() enums.ContentType { return enums.ContentTypeMarker }
func (RouteContent) ContentType() enums.ContentType  { return enums.ContentTypeRoute }
func (EventContent) ContentType() enums.ContentType  { return enums.ContentTypeEvent }

func (PostContent) content()   {}
func (MarkerContent) content() {}
func (RouteContent) content()  {}
func (EventContent) content()  {}

// ValidateContent checks struct tags plus the cross-field rules tags
// cannot express.
func ValidateContent(c Content) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "content is required")
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch v := c.(type) {
	case PostContent, MarkerContent, RouteContent:
		return nil
	case EventContent:
		details := map[string]string{}
		if v.StartAt.IsZero() {
			details["startAt"] = "is required"
		}
		if v.EndAt.IsZero() {
			details["endAt"] = "is required"
		}
		if len(details) == 0 && v.EndAt.Before(v.StartAt) {
			details["endAt"] = "must not be before startAt"
		}
		if (v.Latitude == nil) != (v.Longitude == nil) {
			details["latitude"] = "latitude and longitude must be set together"
		}
		if len(details) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported content %T", c))
	}
}

// EncodeContent serializes content for the content_data column.
func EncodeContent(c Content) (json.RawMessage, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content is required")
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode content")
	}
	return b, nil
}

// DecodeContent rebuilds the typed variant for contentType.
func DecodeContent(contentType enums.ContentType, raw json.RawMessage) (Content, error) {
	switch contentType {
	case enums.ContentTypePost:
		var c PostContent
		return decodeInto(raw, &c, func() Content { return c })
	case enums.ContentTypeMarker:
		var c MarkerContent
		return decodeInto(raw, &c, func() Content { return c })
	case enums.ContentTypeRoute:
		var c RouteContent
		return decodeInto(raw, &c, func() Content { return c })
	case enums.ContentTypeEvent:
		var c EventContent
		return decodeInto(raw, &c, func() Content { return c })
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown content type %q", contentType))
	}
}

func decodeInto(raw json.RawMessage, dest any, value func() Content) (Content, error) {
	if err := json.Unmarshal(raw, dest); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode content")
	}
	return value(), nil
}
