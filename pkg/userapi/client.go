package userapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	initialInterval = 500 * time.Millisecond
	maxInterval     = 5 * time.Second
	multiplier      = 1.5
	maxElapsedTime  = 30 * time.Second
	requestTimeout  = 30 * time.Second
	maxResponseSize = 4 << 20

	InitDataHeader = "x-initdata"
)

var ErrUnauthorized = errors.New("userapi: unauthorized")

// StatusError is a non-retryable response from the user service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client talks to the user/session service that trusts relayed launch data.
type Client struct {
	logger         *zap.Logger
	baseURL        string
	httpClient     *http.Client
	maxElapsedTime time.Duration
}

func NewClient(logger *zap.Logger, baseURL string) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("user API URL cannot be empty")
	}
	return &Client{
		logger:         logger,
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: requestTimeout},
		maxElapsedTime: maxElapsedTime,
	}, nil
}

// Authenticate creates or fetches the user identified by relayed launch data.
func (c *Client) Authenticate(ctx context.Context, relayedInitData string) (*Session, error) {
	if relayedInitData == "" {
		return nil, fmt.Errorf("relayed init data cannot be empty")
	}
	headers := http.Header{}
	headers.Set(InitDataHeader, relayedInitData)

	var res envelope[Session]
	if err := c.do(ctx, "Authenticating user...", http.MethodPost, "/auth", headers, struct{}{}, &res); err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return &res.Result, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*Session, error) {
	var res envelope[Session]
	if err := c.do(ctx, "Fetching user...", http.MethodGet, "/users", bearer(accessToken), nil, &res); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &res.Result, nil
}

// RefreshAccessToken exchanges a refresh token for a new access token.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	var res envelope[refreshResult]
	if err := c.do(ctx, "Refreshing access token...", http.MethodPost, "/users/refresh_token", bearer(refreshToken), struct{}{}, &res); err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	if res.Result.AccessToken == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}
	return res.Result.AccessToken, nil
}

// RequestFaucet asks the service to fund the user's wallet for the profile mint.
func (c *Client) RequestFaucet(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, "Requesting wallet faucet...", http.MethodPost, "/wallet/faucet", bearer(accessToken), struct{}{}, nil); err != nil {
		return fmt.Errorf("failed to request faucet: %w", err)
	}
	return nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func (c *Client) retryHTTPRequest(ctx context.Context, logMessage string, operation func() ([]byte, error)) ([]byte, error) {
	retries := 0
	wrappedOperation := func() ([]byte, error) {
		c.logger.Sugar().Debugw(logMessage, "retries", retries)
		retries++
		return operation()
	}

	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = initialInterval
	exponentialBackoff.MaxInterval = maxInterval
	exponentialBackoff.Multiplier = multiplier

	return backoff.Retry(
		ctx,
		wrappedOperation,
		backoff.WithBackOff(exponentialBackoff),
		backoff.WithMaxElapsedTime(c.maxElapsedTime),
	)
}

func (c *Client) do(ctx context.Context, logMessage, method, path string, headers http.Header, body any, out any) error {
	var requestBody []byte
	if body != nil {
		var err error
		requestBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	url := c.baseURL + path

	operation := func() ([]byte, error) {
		var reader io.Reader
		if requestBody != nil {
			reader = bytes.NewReader(requestBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if requestBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		for k, vv := range headers {
			for _, v := range vv {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, string(responseBody))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: string(responseBody)})
		}

		c.logger.Sugar().Debugw("User API response", "path", path, "status", resp.StatusCode)
		return responseBody, nil
	}

	responseBody, err := c.retryHTTPRequest(ctx, logMessage, operation)
	if err != nil {
		return err
	}
	if out == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
