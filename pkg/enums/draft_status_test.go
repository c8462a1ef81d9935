package enums

import "testing"

func TestDraftStatusTransitions(t *testing.T) {
	tests := []struct {
		from DraftStatus
		to   DraftStatus
		ok   bool
	}{
		{DraftStatusDraft, DraftStatusUploading, true},
		{DraftStatusDraft, DraftStatusFailed, false},
		{DraftStatusDraft, DraftStatusFailedPermanent, false},
		{DraftStatusUploading, DraftStatusFailed, true},
		{DraftStatusUploading, DraftStatusFailedPermanent, true},
		{DraftStatusUploading, DraftStatusDraft, false},
		{DraftStatusUploading, DraftStatusUploading, false},
		{DraftStatusFailed, DraftStatusUploading, true},
		{DraftStatusFailed, DraftStatusFailed, false},
		{DraftStatusFailed, DraftStatusFailedPermanent, false},
		{DraftStatusFailedPermanent, DraftStatusUploading, true},
		{DraftStatusFailedPermanent, DraftStatusDraft, false},
		{DraftStatusDraft, DraftStatusDraft, false},
		{DraftStatus("bogus"), DraftStatus("bogus"), false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tt.from, tt.to, tt.ok, got)
		}
	}
}

func TestDraftStatusEligible(t *testing.T) {
	if !DraftStatusDraft.Eligible() || !DraftStatusFailed.Eligible() {
		t.Fatal("draft and failed must be eligible")
	}
	if DraftStatusUploading.Eligible() || DraftStatusFailedPermanent.Eligible() {
		t.Fatal("uploading and failed_permanent must not be eligible")
	}
}

func TestParseContentType(t *testing.T) {
	for _, ct := range ContentTypes() {
		got, err := ParseContentType(string(ct))
		if err != nil || got != ct {
			t.Fatalf("parse %s: got %s err %v", ct, got, err)
		}
	}
	if _, err := ParseContentType("video"); err == nil {
		t.Fatal("expected error for unknown content type")
	}
	if _, err := ParseDraftStatus("deleted"); err == nil {
		t.Fatal("deleted is not a persisted status")
	}
}

func TestUploadStageIsValid(t *testing.T) {
	if !UploadStageUploadingTrack.IsValid() {
		t.Fatal("uploading_track should be valid")
	}
	if UploadStage("retrying").IsValid() {
		t.Fatal("unknown stage should be invalid")
	}
}
