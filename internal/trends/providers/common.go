package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/artist-trends/internal/common"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errRateLimited   = errors.New("rate limited")
	errBlocked       = errors.New("blocked by provider")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// maxBodySize caps how much of a provider response is read.
const maxBodySize = 8 << 20

// doRequestWithResilience executes the HTTP request with retries, exponential
// backoff and a circuit breaker, and returns the full response body.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) ([]byte, *http.Response, error) {
	if cfg.Client == nil {
		return nil, nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, nil, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, nil, err
		}
		req = req.WithContext(ctx)

		type outcome struct {
			body []byte
			resp *http.Response
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
			if readErr != nil {
				return nil, fmt.Errorf("read body: %w", readErr)
			}
			if isBlockPage(resp.Header.Get("Content-Type"), body) {
				return nil, errBlocked
			}
			return outcome{body: body, resp: resp}, nil
		})

		if err == nil {
			out, ok := result.(outcome)
			if !ok {
				return nil, nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return out.body, out.resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		if attempt >= cfg.Backoff.MaxRetries {
			return nil, nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

// isBlockPage reports whether the provider answered 200 with its HTML abuse
// interstitial instead of data. XML feeds are never block pages.
func isBlockPage(contentType string, body []byte) bool {
	head := bytes.TrimSpace(body[:min(len(body), 4096)])
	if !isHTML(contentType, head) {
		return false
	}
	return common.HasAny(string(head), "unusual traffic", "/sorry/index", "detected unusual")
}

func isHTML(contentType string, head []byte) bool {
	lower := bytes.ToLower(head[:min(len(head), 16)])
	if bytes.HasPrefix(lower, []byte("<?xml")) {
		return false
	}
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}
