package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/webstickynotes/websticky/pkg/errors"
	"github.com/webstickynotes/websticky/pkg/logging"
)

const (
	remoteTimeout = 30 * time.Second

	// The hosted API throttles bursty clients; stay comfortably under.
	remoteRateLimit = rate.Limit(5)
	remoteBurstSize = 10
)

// DefaultTransport returns an http.Transport tuned for a small number of
// hosts hit repeatedly.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// RemoteClient performs note operations against the remote API. Every
// request carries the ambient session cookies via the shared client; a
// failed call surfaces as an error and is never retried here or rerouted
// to local storage.
type RemoteClient struct {
	apiBase string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewRemoteClient returns a client for apiBase. httpClient must share
// the cookie jar with the auth stack; if nil, a default client with a
// tuned transport is built (useful only for tests, since it carries no
// session).
func NewRemoteClient(apiBase string, httpClient *http.Client, logger *logging.Logger) *RemoteClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: remoteTimeout, Transport: DefaultTransport()}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RemoteClient{
		apiBase: apiBase,
		client:  httpClient,
		limiter: rate.NewLimiter(remoteRateLimit, remoteBurstSize),
		logger:  logger,
	}
}

// Do performs one API call and returns the raw response payload. It is
// the tunnel behind the relay's API_REQUEST envelope as well as the four
// typed note operations.
func (c *RemoteClient) Do(ctx context.Context, method, endpoint string, body any, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemoteRequest, "rate limiter interrupted")
	}

	target := c.apiBase + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemoteRequest, "failed to build request").
			WithContext("endpoint", endpoint)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemoteRequest, "request failed").
			WithContext("endpoint", endpoint).
			WithContext("method", method)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemoteRequest, "failed to read response").
			WithContext("endpoint", endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error(logging.CategoryNetwork, "remote.failed", "remote request failed", map[string]any{
			"endpoint": endpoint,
			"method":   method,
			"status":   resp.StatusCode,
		})
		return nil, errors.New(errors.ErrCodeRemoteRequest, fmt.Sprintf("%s %s returned %d", method, endpoint, resp.StatusCode)).
			WithContext("endpoint", endpoint).
			WithContext("status", resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	return payload, nil
}

// List fetches notes, optionally narrowed by one filter.
func (c *RemoteClient) List(ctx context.Context, filter ListFilter) ([]Note, error) {
	params := url.Values{}
	if filter.Search != "" {
		params.Set("search", filter.Search)
	}
	if filter.Website != "" {
		params.Set("website", filter.Website)
	}

	payload, err := c.Do(ctx, http.MethodGet, "/notes", nil, params)
	if err != nil {
		return nil, err
	}

	var result []Note
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemoteRequest, "undecodable note list").
			WithContext("endpoint", "/notes")
	}
	return result, nil
}

// Create posts a new note; the server assigns the ID and timestamps.
func (c *RemoteClient) Create(ctx context.Context, note Note) (Note, error) {
	return c.sendNote(ctx, http.MethodPost, note)
}

// Update replaces a note; note.ID must already be set.
func (c *RemoteClient) Update(ctx context.Context, note Note) (Note, error) {
	if note.ID == "" {
		return Note{}, errors.New(errors.ErrCodeInvalidInput, "update requires a note id")
	}
	return c.sendNote(ctx, http.MethodPut, note)
}

// Delete removes the note with the given ID.
func (c *RemoteClient) Delete(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("noteId", id)
	_, err := c.Do(ctx, http.MethodDelete, "/notes", nil, params)
	return err
}

func (c *RemoteClient) sendNote(ctx context.Context, method string, note Note) (Note, error) {
	payload, err := c.Do(ctx, method, "/notes", note, nil)
	if err != nil {
		return Note{}, err
	}

	var result Note
	if err := json.Unmarshal(payload, &result); err != nil {
		return Note{}, errors.Wrap(err, errors.ErrCodeRemoteRequest, "undecodable note response").
			WithContext("endpoint", "/notes")
	}
	return result, nil
}
