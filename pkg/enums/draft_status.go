package enums

import "fmt"

// DraftStatus tracks where a draft is in its delivery lifecycle.
type DraftStatus string

const (
	DraftStatusDraft           DraftStatus = "draft"
	DraftStatusUploading       DraftStatus = "uploading"
	DraftStatusFailed          DraftStatus = "failed"
	DraftStatusFailedPermanent DraftStatus = "failed_permanent"
)

var validDraftStatuses = []DraftStatus{
	DraftStatusDraft,
	DraftStatusUploading,
	DraftStatusFailed,
	DraftStatusFailedPermanent,
}

// Deletion is not a status; a delivered draft is removed from the store.
var draftStatusTransitions = map[DraftStatus][]DraftStatus{
	DraftStatusDraft:           {DraftStatusUploading},
	DraftStatusUploading:       {DraftStatusFailed, DraftStatusFailedPermanent},
	DraftStatusFailed:          {DraftStatusUploading},
	DraftStatusFailedPermanent: {DraftStatusUploading},
}

func (s DraftStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches a known draft status.
func (s DraftStatus) IsValid() bool {
	for _, candidate := range validDraftStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed. There
// are no self-loops: a retry count only changes on the way out of uploading.
func (s DraftStatus) CanTransitionTo(next DraftStatus) bool {
	for _, candidate := range draftStatusTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Eligible reports whether the automatic queue may pick the draft up.
func (s DraftStatus) Eligible() bool {
	return s == DraftStatusDraft || s == DraftStatusFailed
}

// ParseDraftStatus converts the raw string to DraftStatus.
func ParseDraftStatus(value string) (DraftStatus, error) {
	for _, candidate := range validDraftStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid draft status %q", value)
}
