package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/angelmondragon/draftsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/types"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://api.test/", WithAPIToken("secret"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestClientCreateRequest(t *testing.T) {
	region := "region-1"
	var capturedURL string
	var capturedHeaders http.Header
	var payload map[string]any

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusCreated, `{"data":{"id":"remote-42"}}`), nil
	})

	created, err := client.Create(context.Background(), CreateRequest{
		ContentType: enums.ContentTypeMarker,
		ClientID:    "client-1",
		RegionID:    &region,
		Content:     map[string]any{"title": "Spring"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "remote-42" {
		t.Fatalf("unexpected id %q", created.ID)
	}
	if capturedURL != "http://api.test/api/v1/markers" {
		t.Fatalf("unexpected url %q", capturedURL)
	}
	if capturedHeaders.Get("Authorization") != "Bearer secret" {
		t.Fatalf("missing bearer token")
	}
	if capturedHeaders.Get("Idempotency-Key") != "client-1" {
		t.Fatalf("missing idempotency key")
	}
	if payload["client_id"] != "client-1" || payload["region_id"] != "region-1" || payload["title"] != "Spring" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestClientCreateDuplicateCarriesExistingID(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusConflict, `{"error":{"code":"IDEMPOTENCY_KEY_REUSED","message":"already created","details":{"existing_id":"remote-7"}}}`), nil
	})

	_, err := client.Create(context.Background(), CreateRequest{ContentType: enums.ContentTypePost, ClientID: "c"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency error, got %v", err)
	}
	if got := ExistingID(err); got != "remote-7" {
		t.Fatalf("unexpected existing id %q", got)
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("unexpected status %d", HTTPStatus(err))
	}
}

func TestClientStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   pkgerrors.Code
	}{
		{http.StatusBadRequest, `{"error":{"code":"VALIDATION_ERROR","message":"title required"}}`, pkgerrors.CodeValidation},
		{http.StatusUnprocessableEntity, ``, pkgerrors.CodeValidation},
		{http.StatusUnauthorized, ``, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, ``, pkgerrors.CodeForbidden},
		{http.StatusNotFound, ``, pkgerrors.CodeNotFound},
		{http.StatusConflict, `{"error":{"code":"CONFLICT","message":"taken"}}`, pkgerrors.CodeConflict},
		{http.StatusTooManyRequests, ``, pkgerrors.CodeRateLimit},
		{http.StatusGatewayTimeout, ``, pkgerrors.CodeTimeout},
		{http.StatusInternalServerError, `boom`, pkgerrors.CodeDependency},
		{http.StatusServiceUnavailable, ``, pkgerrors.CodeDependency},
	}

	for _, tc := range cases {
		client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, tc.body), nil
		})
		_, err := client.Create(context.Background(), CreateRequest{ContentType: enums.ContentTypePost, ClientID: "c"})
		if !pkgerrors.IsCode(err, tc.want) {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.want, err)
		}
	}
}

func TestClientTransportErrors(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	err := client.Ping(context.Background())
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if HTTPStatus(err) != 0 {
		t.Fatalf("transport error should not carry a status")
	}

	client = newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	if err := client.Ping(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestClientUploadImageMultipart(t *testing.T) {
	var capturedURL string
	var fileName, partType string
	var data []byte

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		_, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if err != nil {
			t.Fatalf("parse content type: %v", err)
		}
		reader := multipart.NewReader(req.Body, params["boundary"])
		part, err := reader.NextPart()
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		if part.FormName() != "image" {
			t.Fatalf("unexpected form field %q", part.FormName())
		}
		fileName = part.FileName()
		partType = part.Header.Get("Content-Type")
		data, _ = io.ReadAll(part)
		return jsonResponse(http.StatusNoContent, ``), nil
	})

	err := client.UploadImage(context.Background(), enums.ContentTypeRoute, "r-1", Image{
		Name: "a.jpg", MimeType: "image/jpeg", Data: []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("upload image: %v", err)
	}
	if capturedURL != "http://api.test/api/v1/routes/r-1/images" {
		t.Fatalf("unexpected url %q", capturedURL)
	}
	if fileName != "a.jpg" || partType != "image/jpeg" || len(data) != 3 {
		t.Fatalf("unexpected part name=%q type=%q len=%d", fileName, partType, len(data))
	}
}

func TestClientUploadTrack(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/routes/r-1/track" {
			t.Fatalf("unexpected path %q", req.URL.Path)
		}
		raw, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"data":{}}`), nil
	})

	track := types.NewTrackFeature([]types.GeoPoint{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}, nil)
	if err := client.UploadTrack(context.Background(), enums.ContentTypeRoute, "r-1", track); err != nil {
		t.Fatalf("upload track: %v", err)
	}
	if body["type"] != "Feature" {
		t.Fatalf("unexpected track body %+v", body)
	}
}

func TestClientRejectsUnknownContentType(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	_, err := client.Create(context.Background(), CreateRequest{ContentType: "story", ClientID: "c"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
