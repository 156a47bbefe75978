package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var ErrIdentityNotFound = errors.New("identity not found in directory")

// Identity is the directory record for an account: its current handle and
// the account genesis time.
type Identity struct {
	Did       string     `json:"did"`
	Handle    string     `json:"handle"`
	CreatedAt *time.Time `json:"createdAt"`
}

// Resolver looks up identities in the network's public directory.
type Resolver interface {
	Lookup(ctx context.Context, did string) (*Identity, error)
	Purge(did string)
}

type HTTPResolver struct {
	Host   string
	Client *http.Client
}

func NewHTTPResolver(host string) *HTTPResolver {
	return &HTTPResolver{
		Host:   host,
		Client: robustHTTPClient(),
	}
}

func (r *HTTPResolver) Lookup(ctx context.Context, did string) (*Identity, error) {
	u := fmt.Sprintf("%s/directory/%s", r.Host, url.PathEscape(did))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrIdentityNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory lookup for %s: status %d", did, resp.StatusCode)
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return nil, fmt.Errorf("decoding directory response: %w", err)
	}
	if ident.Did == "" {
		ident.Did = did
	}
	return &ident, nil
}

func (r *HTTPResolver) Purge(did string) {}

type leveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l leveledSlog) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debug(msg, keysAndValues...)
}

// HTTP client with retries on connection errors, 5xx, and 429 (respecting
// Retry-After). Intermediate failures are logged at WARN.
func robustHTTPClient() *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{slog.Default().With("system", "directory")})
	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second
	return client
}
