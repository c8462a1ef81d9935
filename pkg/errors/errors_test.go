package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "invalid draft input", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "remote rejected credentials"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "remote denied access"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflicting request"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "draft state does not allow this", detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "client id already delivered", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "remote rate limited", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "remote unavailable", retryable: true, detailsOK: true},
		{code: CodeTimeout, status: http.StatusGatewayTimeout, publicMsg: "remote timed out", retryable: true},
		{code: CodeStorage, status: http.StatusInternalServerError, publicMsg: "local storage failure"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing title")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing title" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "title"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("disk full")
	wrapped := Wrap(CodeStorage, cause, "insert draft")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeStorage {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if wrapped.Error() != "STORAGE_ERROR: insert draft: disk full" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestAsAndIsCodeFollowChain(t *testing.T) {
	err := fmt.Errorf("upload: %w", New(CodeTimeout, "create post"))
	if got := As(err); got == nil || got.Code() != CodeTimeout {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeTimeout) {
		t.Fatalf("expected IsCode to match timeout")
	}
	if IsCode(err, CodeStorage) {
		t.Fatalf("did not expect storage code")
	}
	if !As(err).Retryable() {
		t.Fatalf("timeouts must be retryable")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	root := stdErrors.New("UNIQUE constraint failed: drafts.client_id")
	err := Wrap(CodeStorage, root, "insert draft")

	d := Dump(err)
	if d.Code != CodeStorage {
		t.Fatalf("expected storage code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}
	if !d.SQLiteConstraint {
		t.Fatalf("expected constraint flag")
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("expected empty dump for nil")
	}
}
