package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prequal-cli/internal/config"
	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/resilience"
)

const defaultMinDocumentBytes = 512

// Magic-byte signatures accepted for downloaded documents. The declared
// Content-Type header is never trusted.
var signatures = []struct {
	format      string
	contentType string
	magic       []byte
}{
	{"pdf", "application/pdf", []byte("%PDF-")},
	{"jpeg", "image/jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"png", "image/png", []byte{0x89, 'P', 'N', 'G'}},
}

// DetectFormat sniffs the payload signature. ok is false when the payload
// matches none of the accepted formats.
func DetectFormat(data []byte) (format, contentType string, ok bool) {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.format, sig.contentType, true
		}
	}
	return "", "", false
}

// DocumentFetcher downloads and validates the binary documents referenced by
// a resource, replacing references with payloads in place.
type DocumentFetcher struct {
	mu       sync.Mutex
	clients  map[string]*http.Client // provider name -> client
	limiters map[string]*rate.Limiter
}

// NewDocumentFetcher creates a document fetcher with per-host rate limiting.
func NewDocumentFetcher() *DocumentFetcher {
	return &DocumentFetcher{
		clients:  make(map[string]*http.Client),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *DocumentFetcher) clientFor(d Descriptor, pc config.ProviderConfig) *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[d.Name]; ok {
		return c
	}
	connect := pc.ConnectTimeout(firstDuration(d.ConnectTimeout, defaultConnectTimeout))
	read := pc.ReadTimeout(firstDuration(d.ReadTimeout, defaultReadTimeout))
	c := &http.Client{
		Timeout: read,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout: connect,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	f.clients[d.Name] = c
	return c
}

func (f *DocumentFetcher) limiterFor(rawURL string) *rate.Limiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(10, 10)
		f.limiters[host] = lim
	}
	return lim
}

// Resolve downloads every document reference in the resource. On success the
// references have been replaced by validated payloads. The returned error
// honors the provider's document policy.
func (f *DocumentFetcher) Resolve(ctx context.Context, d Descriptor, pc config.ProviderConfig, companyID string, bd model.BundledData) *Error {
	minBytes := d.MinDocumentBytes
	if pc.MinDocumentBytes > 0 {
		minBytes = pc.MinDocumentBytes
	}
	if minBytes <= 0 {
		minBytes = defaultMinDocumentBytes
	}
	minDocs := pc.MinDocuments
	if minDocs <= 0 {
		minDocs = 1
	}
	policy := d.EffectivePolicy(pc)

	var attempted, succeeded int
	var firstRetryable, firstFailure *Error

	for key, val := range bd.Resource {
		refs := val.References()
		if len(refs) == 0 {
			continue
		}

		var docs []model.Document
		for i, ref := range refs {
			attempted++
			doc, ferr := f.fetchOne(ctx, d, pc, companyID, ref, i, len(refs), minBytes)
			if ferr != nil {
				if policy == PolicyAllOrNothing {
					return ferr
				}
				zap.L().Warn("document skipped under best-effort policy",
					zap.String("provider", d.Name),
					zap.String("url", ref.URL),
					zap.Error(ferr),
				)
				if firstFailure == nil {
					firstFailure = ferr
				}
				if firstRetryable == nil && Retryable(ferr) {
					firstRetryable = ferr
				}
				continue
			}
			succeeded++
			docs = append(docs, *doc)
		}

		switch {
		case len(docs) == 0:
			// Leave the unresolved reference out of the mapped output.
			delete(bd.Resource, key)
		case val.Kind == model.KindDocumentRef && len(docs) == 1:
			bd.Resource[key] = model.DocValue(docs[0])
		default:
			bd.Resource[key] = model.DocsValue(docs)
		}
	}

	// An explicitly empty reference set is not a failure.
	if attempted == 0 {
		return nil
	}
	if policy == PolicyBestEffort && succeeded < minDocs {
		if firstRetryable != nil {
			return firstRetryable
		}
		return failf(d.Name, StageDocuments, KindDocument, firstFailure,
			"retrieved %d of %d documents, need at least %d", succeeded, attempted, minDocs)
	}
	return nil
}

func (f *DocumentFetcher) fetchOne(ctx context.Context, d Descriptor, pc config.ProviderConfig, companyID string, ref model.DocumentRef, index, total, minBytes int) (*model.Document, *Error) {
	var data []byte
	var ferr *Error
	if strings.HasPrefix(ref.URL, "ftp://") {
		data, ferr = f.fetchFTP(ctx, d, pc, ref.URL)
	} else {
		data, ferr = f.fetchHTTP(ctx, d, pc, ref.URL)
	}
	if ferr != nil {
		return nil, ferr
	}

	if len(data) < minBytes {
		return nil, failf(d.Name, StageDocuments, KindDocument, nil,
			"document from %s is %d bytes, minimum %d", ref.URL, len(data), minBytes)
	}
	format, contentType, ok := DetectFormat(data)
	if !ok {
		return nil, failf(d.Name, StageDocuments, KindDocument, nil,
			"document from %s has no recognized signature", ref.URL)
	}
	if !formatAccepted(d, format) {
		return nil, failf(d.Name, StageDocuments, KindDocument, nil,
			"document from %s is %s, provider accepts %v", ref.URL, format, acceptedFormats(d))
	}

	doc := &model.Document{
		Bytes:       data,
		Filename:    DocumentFilename(companyID, ref.Name, index, total, format),
		ContentType: contentType,
		Provider:    d.Name,
		Metadata: map[string]string{
			"source_url": ref.URL,
			"format":     format,
		},
	}
	return doc, nil
}

func (f *DocumentFetcher) fetchHTTP(ctx context.Context, d Descriptor, pc config.ProviderConfig, rawURL string) ([]byte, *Error) {
	if err := f.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, failf(d.Name, StageDocuments, KindTransport, err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, failf(d.Name, StageDocuments, KindContract, err, "build document request for %s", rawURL)
	}
	if pc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+pc.Token)
	}

	resp, err := f.clientFor(d, pc).Do(req)
	if err != nil {
		kind := resilience.ClassifyTransport(err)
		return nil, &Error{
			Provider:  d.Name,
			Stage:     StageDocuments,
			Kind:      KindTransport,
			Transport: kind,
			Message:   fmt.Sprintf("%s downloading %s", kind, rawURL),
			Err:       err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Provider:   d.Name,
			Stage:      StageDocuments,
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status %d downloading %s", resp.StatusCode, rawURL),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := resilience.ClassifyTransport(err)
		return nil, &Error{
			Provider:  d.Name,
			Stage:     StageDocuments,
			Kind:      KindTransport,
			Transport: kind,
			Message:   fmt.Sprintf("read document body from %s", rawURL),
			Err:       err,
		}
	}
	return data, nil
}

// fetchFTP retrieves a document from the legacy FTP archive family.
func (f *DocumentFetcher) fetchFTP(ctx context.Context, d Descriptor, pc config.ProviderConfig, rawURL string) ([]byte, *Error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, failf(d.Name, StageDocuments, KindContract, err, "parse ftp url %s", rawURL)
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	connect := pc.ConnectTimeout(firstDuration(d.ConnectTimeout, defaultConnectTimeout))
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(connect))
	if err != nil {
		kind := resilience.ClassifyTransport(err)
		return nil, &Error{
			Provider:  d.Name,
			Stage:     StageDocuments,
			Kind:      KindTransport,
			Transport: kind,
			Message:   fmt.Sprintf("%s dialing ftp %s", kind, addr),
			Err:       err,
		}
	}
	defer conn.Quit() //nolint:errcheck

	user, pass := pc.FTPUser, pc.FTPPassword
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, failf(d.Name, StageDocuments, KindCredentials, err, "ftp login to %s", addr)
	}

	r, err := conn.Retr(strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return nil, failf(d.Name, StageDocuments, KindDocument, err, "ftp retrieve %s", u.Path)
	}
	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, failf(d.Name, StageDocuments, KindTransport, err, "ftp read %s", u.Path)
	}
	return data, nil
}

func formatAccepted(d Descriptor, format string) bool {
	accepts := acceptedFormats(d)
	for _, a := range accepts {
		if a == format {
			return true
		}
	}
	return false
}

func acceptedFormats(d Descriptor) []string {
	if len(d.Accepts) == 0 {
		return []string{"pdf"}
	}
	return d.Accepts
}
