package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// DefaultResource is the audience requested from the identity endpoint.
const DefaultResource = "https://graph.microsoft.com"

// ErrNoIdentityEndpoint is returned when managed identity is not available.
var ErrNoIdentityEndpoint = errors.New("IDENTITY_ENDPOINT and IDENTITY_HEADER are not set")

// TokenSource supplies bearer tokens for Graph requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token itself.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", models.Failed("graph token is empty")
	}
	return string(t), nil
}

// ManagedIdentity acquires tokens from the App Service / Functions
// identity endpoint and caches them until shortly before expiry.
type ManagedIdentity struct {
	Endpoint string
	Header   string
	Resource string
	HTTP     *http.Client
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewManagedIdentity reads IDENTITY_ENDPOINT and IDENTITY_HEADER from the
// environment.
func NewManagedIdentity(resource string) (*ManagedIdentity, error) {
	endpoint := os.Getenv("IDENTITY_ENDPOINT")
	header := os.Getenv("IDENTITY_HEADER")
	if endpoint == "" || header == "" {
		return nil, ErrNoIdentityEndpoint
	}
	if resource == "" {
		resource = DefaultResource
	}
	return &ManagedIdentity{Endpoint: endpoint, Header: header, Resource: resource}, nil
}

type identityResponse struct {
	AccessToken string `json:"access_token"`
	// ExpiresOn is seconds since the epoch, sent as a string.
	ExpiresOn string `json:"expires_on"`
}

// Token returns a cached token or fetches a fresh one.
func (m *ManagedIdentity) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now
	if m.now != nil {
		now = m.now
	}
	if m.token != "" && now().Add(5*time.Minute).Before(m.expires) {
		return m.token, nil
	}

	q := url.Values{}
	q.Set("resource", m.Resource)
	q.Set("api-version", "2019-08-01")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create identity request: %w", err)
	}
	req.Header.Set("X-IDENTITY-HEADER", m.Header)

	client := m.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity endpoint: %w", models.Retryable(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read identity response: %w", models.Retryable(err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity endpoint: %w",
			classifyStatus(&StatusError{Status: resp.StatusCode, Message: string(body)}))
	}

	var ir identityResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return "", fmt.Errorf("decode identity response: %w", err)
	}
	if ir.AccessToken == "" {
		return "", models.Failed("identity endpoint returned no access token")
	}

	m.token = ir.AccessToken
	m.expires = now().Add(time.Hour)
	if secs, err := strconv.ParseInt(ir.ExpiresOn, 10, 64); err == nil {
		m.expires = time.Unix(secs, 0)
	}
	return m.token, nil
}
