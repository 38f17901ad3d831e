package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/middleware/requestid"
)

const (
	// IdempotencyHeader carries a fresh key on every batch submission.
	IdempotencyHeader = "Idempotency-Key"

	maxResponseBytes = 8 << 20
)

// Operation labels used for upstream metrics.
const (
	OpFetchRoster       = "fetch_roster"
	OpFetchPrerequisite = "fetch_prerequisite"
	OpSubmitBatch       = "submit_batch"
)

type upstreamObserver interface {
	ObserveUpstream(operation, outcome string, duration time.Duration)
}

type authorizationKey struct{}

// WithAuthorization stores the caller's Authorization header so it is
// forwarded on every upstream call made with ctx.
func WithAuthorization(ctx context.Context, header string) context.Context {
	if header == "" {
		return ctx
	}
	return context.WithValue(ctx, authorizationKey{}, header)
}

// AuthorizationFrom returns the header stored by WithAuthorization.
func AuthorizationFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(authorizationKey{}).(string)
	return value
}

// Config tunes the Roster Service client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// RosterClient talks to the Roster Service REST API.
type RosterClient struct {
	baseURL string
	http    *http.Client
	metrics upstreamObserver
	logger  *zap.Logger
}

// NewRosterClient constructs a client with sane defaults.
func NewRosterClient(cfg Config, metrics upstreamObserver, logger *zap.Logger) *RosterClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RosterClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
		logger:  logger,
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchRoster lists the students of a course offering together with any
// annotation already committed for the key's date in workflow.
func (c *RosterClient) FetchRoster(ctx context.Context, key models.RosterKey, workflow models.Workflow) ([]models.RosterEntity, error) {
	query := url.Values{}
	query.Set("date", key.DateString())
	query.Set("workflow", string(workflow))
	path := fmt.Sprintf("/course-offerings/%s/roster?%s", url.PathEscape(key.CourseOfferingID()), query.Encode())

	var entities []models.RosterEntity
	if err := c.do(ctx, OpFetchRoster, http.MethodGet, path, nil, nil, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// FetchPrerequisite reports whether attendance exists for the key.
func (c *RosterClient) FetchPrerequisite(ctx context.Context, key models.RosterKey) (models.PrerequisiteStatus, error) {
	path := fmt.Sprintf("/course-offerings/%s/attendance/%s/status", url.PathEscape(key.CourseOfferingID()), key.DateString())

	var status models.PrerequisiteStatus
	if err := c.do(ctx, OpFetchPrerequisite, http.MethodGet, path, nil, nil, &status); err != nil {
		return models.PrerequisiteStatus{}, err
	}
	return status, nil
}

// SubmitBatch posts every annotated record for the payload's key. Each call
// carries a new idempotency key.
func (c *RosterClient) SubmitBatch(ctx context.Context, workflow models.Workflow, payload models.BatchPayload) (models.BatchResult, error) {
	path := fmt.Sprintf("/course-offerings/%s/%s/%s/batch", url.PathEscape(payload.CourseOfferingID), workflow, payload.Date)

	body, err := json.Marshal(payload)
	if err != nil {
		return models.BatchResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode batch")
	}
	headers := http.Header{}
	headers.Set(IdempotencyHeader, uuid.NewString())

	var result *models.BatchResult
	if err := c.do(ctx, OpSubmitBatch, http.MethodPost, path, body, headers, &result); err != nil {
		return models.BatchResult{}, err
	}
	if result == nil {
		// 2xx with no body or null data: the whole batch was taken.
		return models.BatchResult{AcceptedCount: len(payload.Records)}, nil
	}
	return *result, nil
}

func (c *RosterClient) do(ctx context.Context, op, method, path string, body []byte, headers http.Header, out interface{}) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveUpstream(op, outcome, time.Since(start))
		}
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		outcome = "error"
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build upstream request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if auth := AuthorizationFrom(ctx); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			outcome = "timeout"
			return appErrors.Wrap(err, appErrors.ErrUpstreamTimeout.Code, appErrors.ErrUpstreamTimeout.Status, appErrors.ErrUpstreamTimeout.Message)
		}
		outcome = "error"
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		outcome = "error"
		if isTimeout(err) {
			outcome = "timeout"
			return appErrors.Wrap(err, appErrors.ErrUpstreamTimeout.Code, appErrors.ErrUpstreamTimeout.Status, appErrors.ErrUpstreamTimeout.Message)
		}
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to read roster service response")
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := http.StatusText(resp.StatusCode)
		upstreamCode := ""
		if decodeErr == nil && env.Error != nil {
			if env.Error.Message != "" {
				message = env.Error.Message
			}
			upstreamCode = env.Error.Code
		}
		c.logger.Warn("roster service returned error",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("upstream_code", upstreamCode),
		)
		if resp.StatusCode >= http.StatusInternalServerError {
			outcome = "error"
			return appErrors.Clone(appErrors.ErrUpstream, message)
		}
		outcome = "rejected"
		rejected := appErrors.Clone(appErrors.ErrUpstreamRejected, message)
		rejected.Status = resp.StatusCode
		if upstreamCode != "" {
			rejected.Details = map[string]string{"upstream_code": upstreamCode}
		}
		return rejected
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if decodeErr != nil {
		outcome = "error"
		return appErrors.Wrap(decodeErr, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "malformed roster service response")
	}
	if out == nil || len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		outcome = "error"
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "malformed roster service payload")
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
