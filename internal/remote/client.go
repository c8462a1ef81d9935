package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/draftsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/types"
)

const (
	defaultHealthPath       = "/health/live"
	defaultTimeout          = 30 * time.Second
	errorBodyReadLimit int64 = 4096
)

// Client talks to the content API that accepts delivered drafts.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	healthPath string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIToken sends the token as a bearer credential.
func WithAPIToken(token string) Option {
	return func(c *Client) {
		c.apiToken = strings.TrimSpace(token)
	}
}

// WithHealthPath overrides the path probed by Ping.
func WithHealthPath(path string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			c.healthPath = trimmed
		}
	}
}

// NewClient builds a content API client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("remote base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid remote base url %q: %w", baseURL, err)
	}

	client := &Client{
		baseURL:    trimmed,
		healthPath: defaultHealthPath,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CreateRequest is the base entity sent for a draft. Content is encoded as
// the JSON body with client_id and region_id added.
type CreateRequest struct {
	ContentType enums.ContentType
	ClientID    string
	RegionID    *string
	Content     any
}

// Created is the remote entity acknowledged by the API.
type Created struct {
	ID string `json:"id"`
}

// Image is a single attachment upload.
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Create posts the base entity. A duplicate client_id is reported as a
// CodeIdempotency error; see ExistingID.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*Created, error) {
	if strings.TrimSpace(req.ClientID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	}
	collection, err := collectionPath(req.ContentType)
	if err != nil {
		return nil, err
	}

	body, err := createBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, collection, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ClientID)

	var created Created
	if err := c.do(httpReq, "create "+string(req.ContentType), &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "create response without id")
	}
	return &created, nil
}

// UploadImage attaches one image to an existing remote entity.
func (c *Client) UploadImage(ctx context.Context, contentType enums.ContentType, remoteID string, img Image) error {
	collection, err := collectionPath(contentType)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	name := img.Name
	if name == "" {
		name = "image"
	}
	mime := img.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	header.Set("Content-Type", mime)
	part, err := writer.CreatePart(header)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build image upload")
	}
	if _, err := part.Write(img.Data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build image upload")
	}
	if err := writer.Close(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build image upload")
	}

	path := fmt.Sprintf("%s/%s/images", collection, url.PathEscape(remoteID))
	httpReq, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(httpReq, "upload image", nil)
}

// UploadTrack attaches a GeoJSON track to an existing remote entity.
func (c *Client) UploadTrack(ctx context.Context, contentType enums.ContentType, remoteID string, track *types.TrackFeature) error {
	collection, err := collectionPath(contentType)
	if err != nil {
		return err
	}
	if track == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "track is required")
	}
	body, err := json.Marshal(track)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode track")
	}

	path := fmt.Sprintf("%s/%s/track", collection, url.PathEscape(remoteID))
	httpReq, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/geo+json")
	return c.do(httpReq, "upload track", nil)
}

// Ping probes the health endpoint; any 2xx means the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := c.newRequest(ctx, http.MethodGet, c.healthPath, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, "health check", nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	return req, nil
}

// do executes req and decodes the success envelope's data into dest when
// dest is non-nil.
func (c *Client) do(req *http.Request, op string, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapTransportError(err, op)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return mapStatusError(resp.StatusCode, raw, op)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	envelope := types.SuccessEnvelope{Data: dest}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}

func collectionPath(contentType enums.ContentType) (string, error) {
	switch contentType {
	case enums.ContentTypePost:
		return "/api/v1/posts", nil
	case enums.ContentTypeMarker:
		return "/api/v1/markers", nil
	case enums.ContentTypeRoute:
		return "/api/v1/routes", nil
	case enums.ContentTypeEvent:
		return "/api/v1/events", nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported content type %q", contentType))
	}
}

func createBody(req CreateRequest) ([]byte, error) {
	fields := map[string]any{}
	if req.Content != nil {
		raw, err := json.Marshal(req.Content)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode content")
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "content must encode to an object")
		}
	}
	fields["client_id"] = req.ClientID
	if req.RegionID != nil {
		fields["region_id"] = *req.RegionID
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode create request")
	}
	return body, nil
}
