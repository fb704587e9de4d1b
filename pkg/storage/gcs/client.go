package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultAPIBase = "https://storage.googleapis.com"
	pingTimeout    = 5 * time.Second
)

// ErrObjectNotFound is returned when the bucket has no object at the path.
var ErrObjectNotFound = errors.New("gcs object not found")

// Client talks to the GCS JSON API with retrying transport.
type Client struct {
	http          *retryablehttp.Client
	apiBase       string
	defaultBucket string
	tokens        tokenProvider
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// ObjectInfo is the subset of object metadata returned by uploads.
type ObjectInfo struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
	MediaLink   string `json:"mediaLink"`
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	httpClient := newRetryingClient(cfg)

	var ts tokenProvider
	var err error
	switch {
	case gcp.CredentialsJSON != "":
		ts, err = newServiceAccountTokenSource(httpClient.StandardClient(), gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		bytes, readErr := os.ReadFile(gcp.ApplicationCredentials)
		if readErr != nil {
			return nil, fmt.Errorf("reading credentials file: %w", readErr)
		}
		ts, err = newServiceAccountTokenSource(httpClient.StandardClient(), string(bytes))
	default:
		ts = newMetadataTokenSource(httpClient.StandardClient())
	}
	if err != nil {
		return nil, err
	}

	client := &Client{
		http:          httpClient,
		apiBase:       defaultAPIBase,
		defaultBucket: cfg.BucketName,
		tokens:        ts,
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

func newRetryingClient(cfg config.GCSConfig) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	if cfg.RequestTimeout > 0 {
		rc.HTTPClient.Timeout = cfg.RequestTimeout
	}
	return rc
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokens == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.apiBase, url.PathEscape(c.defaultBucket))
	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError("gcs object check failed", resp)
	}
	return nil
}

// UploadObject stores body at object in the default bucket using a simple media upload.
func (c *Client) UploadObject(ctx context.Context, object, contentType string, body []byte) (*ObjectInfo, error) {
	if c == nil || c.tokens == nil {
		return nil, errors.New("gcs client not initialized")
	}
	object = strings.TrimLeft(object, "/")
	if object == "" {
		return nil, errors.New("object name is required")
	}

	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", object)
	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.apiBase, url.PathEscape(c.defaultBucket), q.Encode())

	resp, err := c.do(ctx, http.MethodPost, u, body, contentType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("gcs upload failed", resp)
	}

	var info ObjectInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return &info, nil
}

// DeleteObject removes object from the default bucket.
func (c *Client) DeleteObject(ctx context.Context, object string) error {
	if c == nil || c.tokens == nil {
		return errors.New("gcs client not initialized")
	}
	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", c.apiBase, url.PathEscape(c.defaultBucket), url.PathEscape(strings.TrimLeft(object, "/")))

	resp, err := c.do(ctx, http.MethodDelete, u, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrObjectNotFound
	default:
		return statusError("gcs delete failed", resp)
	}
}

// ObjectURL is the canonical gs:// reference persisted for an object.
func (c *Client) ObjectURL(object string) string {
	return fmt.Sprintf("gs://%s/%s", c.DefaultBucket(), strings.TrimLeft(object, "/"))
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, contentType string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching gcs token: %w", err)
	}

	var raw interface{}
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, raw)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func statusError(prefix string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(b)); msg != "" {
		return fmt.Errorf("%s: %s: %s", prefix, resp.Status, msg)
	}
	return fmt.Errorf("%s: %s", prefix, resp.Status)
}
