package enums

import "fmt"

// ContentType identifies which kind of user content a draft carries.
type ContentType string

const (
	ContentTypePost   ContentType = "post"
	ContentTypeMarker ContentType = "marker"
	ContentTypeRoute  ContentType = "route"
	ContentTypeEvent  ContentType = "event"
)

var validContentTypes = []ContentType{
	ContentTypePost,
	ContentTypeMarker,
	ContentTypeRoute,
	ContentTypeEvent,
}

// ContentTypes returns every supported content type.
func ContentTypes() []ContentType {
	out := make([]ContentType, len(validContentTypes))
	copy(out, validContentTypes)
	return out
}

func (c ContentType) String() string {
	return string(c)
}

// IsValid reports whether the value matches a supported content type.
func (c ContentType) IsValid() bool {
	for _, candidate := range validContentTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseContentType converts the raw string to ContentType.
func ParseContentType(value string) (ContentType, error) {
	for _, candidate := range validContentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid content type %q", value)
}
