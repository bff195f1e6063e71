package pipeline

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/config"
	"github.com/sells-group/prequal-cli/internal/resilience"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 30 * time.Second
)

// Response is the raw provider response handed to the resource builder.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Requester builds one authenticated GET per provider per applicant and
// classifies transport failures into the pipeline error taxonomy.
type Requester struct {
	clients sync.Map // provider name -> *http.Client
}

// NewRequester creates a requester with per-provider HTTP clients.
func NewRequester() *Requester { return &Requester{} }

func (r *Requester) clientFor(d Descriptor, pc config.ProviderConfig) *http.Client {
	if c, ok := r.clients.Load(d.Name); ok {
		return c.(*http.Client)
	}
	connect := pc.ConnectTimeout(firstDuration(d.ConnectTimeout, defaultConnectTimeout))
	read := pc.ReadTimeout(firstDuration(d.ReadTimeout, defaultReadTimeout))
	client := &http.Client{
		Timeout: read,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout: connect,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	actual, _ := r.clients.LoadOrStore(d.Name, client)
	return actual.(*http.Client)
}

// URL renders the provider endpoint for a company identifier.
func (r *Requester) URL(d Descriptor, pc config.ProviderConfig, companyID string) string {
	path := fmt.Sprintf(d.Path, url.PathEscape(companyID))
	return strings.TrimRight(pc.BaseURL, "/") + path
}

// Fetch performs the provider GET. A nil *Error means the caller owns a 2xx
// response body.
func (r *Requester) Fetch(ctx context.Context, d Descriptor, pc config.ProviderConfig, companyID string) (*Response, *Error) {
	if d.RequiresAuth && pc.Token == "" {
		return nil, failf(d.Name, StageRequest, KindCredentials, nil,
			"no credentials configured for %s", d.Name)
	}
	if pc.BaseURL == "" {
		return nil, failf(d.Name, StageRequest, KindCredentials, nil,
			"no base URL configured for %s", d.Name)
	}

	endpoint := r.URL(d, pc, companyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, failf(d.Name, StageRequest, KindContract, err, "build request for %s", endpoint)
	}
	req.Header.Set("Accept", "application/json")
	if pc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+pc.Token)
	}

	resp, err := r.clientFor(d, pc).Do(req)
	if err != nil {
		kind := resilience.ClassifyTransport(err)
		return nil, &Error{
			Provider:  d.Name,
			Stage:     StageRequest,
			Kind:      KindTransport,
			Transport: kind,
			Message:   fmt.Sprintf("%s against %s", kind, endpoint),
			Err:       err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := resilience.ClassifyTransport(err)
		return nil, &Error{
			Provider:  d.Name,
			Stage:     StageRequest,
			Kind:      KindTransport,
			Transport: kind,
			Message:   fmt.Sprintf("read body from %s", endpoint),
			Err:       err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		zap.L().Warn("provider returned non-2xx",
			zap.String("provider", d.Name),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)),
		)
		return nil, &Error{
			Provider:   d.Name,
			Stage:      StageRequest,
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status %d from %s: %s", resp.StatusCode, endpoint, truncate(body, 256)),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func firstDuration(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
