package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/VertexProxyAPI/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// cloudPlatformScope is the OAuth scope required for Vertex AI.
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	// tokenExpiryBuffer is how long before expiry a token is treated as
	// invalid, so in-flight requests never race the actual expiry.
	tokenExpiryBuffer = 10 * time.Minute

	// refreshInterval is the cadence of the background refresh ticker.
	refreshInterval = 5 * time.Minute
)

// tokenFetcher obtains a fresh access token and its expiry. Swappable in
// tests; the default goes through application default credentials.
type tokenFetcher func(ctx context.Context) (string, time.Time, error)

// ServiceAccountAuth implements Provider using application default
// credentials. The token and expiry are the only mutable shared state in
// the process; one mutex covers the whole check-then-refresh sequence so
// concurrent callers never issue duplicate refreshes.
type ServiceAccountAuth struct {
	projectID   string
	location    string
	autoRefresh bool
	persist     TokenPersister
	httpClient  *http.Client
	fetch       tokenFetcher

	mu          sync.Mutex
	accessToken string
	expiry      time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServiceAccountAuth creates a service-account provider. persist may
// be nil when token persistence is not wanted.
func NewServiceAccountAuth(cfg *config.Config, persist TokenPersister, httpClient *http.Client) *ServiceAccountAuth {
	a := &ServiceAccountAuth{
		projectID:   cfg.ProjectID,
		location:    cfg.Location,
		autoRefresh: cfg.AutoRefresh,
		persist:     persist,
		httpClient:  httpClient,
		stopCh:      make(chan struct{}),
	}
	a.fetch = a.fetchDefaultToken
	return a
}

// SeedToken installs a previously persisted token so a fresh process can
// serve requests before its first refresh completes.
func (a *ServiceAccountAuth) SeedToken(accessToken string, expiry time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accessToken = accessToken
	a.expiry = expiry.UTC()
}

// GetHeaders returns the upstream auth headers, refreshing the token
// first when it is missing or inside the expiry buffer.
func (a *ServiceAccountAuth) GetHeaders(ctx context.Context) (map[string]string, error) {
	a.mu.Lock()
	if !a.validLocked() {
		if err := a.refreshLocked(ctx); err != nil {
			log.Errorf("token refresh failed: %v", err)
		}
	}
	token := a.accessToken
	a.mu.Unlock()

	if token == "" {
		return nil, ErrNoValidToken
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	if a.projectID != "" {
		headers["x-goog-user-project"] = a.projectID
	}
	return headers, nil
}

// Refresh forces a token refresh regardless of current validity. Used by
// the background ticker and Start.
func (a *ServiceAccountAuth) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshLocked(ctx)
}

// validLocked reports whether the current token outlives the expiry
// buffer. Callers must hold a.mu.
func (a *ServiceAccountAuth) validLocked() bool {
	if a.accessToken == "" || a.expiry.IsZero() {
		return false
	}
	return time.Now().UTC().Add(tokenExpiryBuffer).Before(a.expiry)
}

// refreshLocked fetches a new token and persists it. Callers must hold
// a.mu; the lock spans the whole fetch so at most one refresh runs and
// no caller observes a half-updated token/expiry pair.
func (a *ServiceAccountAuth) refreshLocked(ctx context.Context) error {
	token, expiry, err := a.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch access token: %w", err)
	}
	a.accessToken = token
	a.expiry = expiry.UTC()
	log.Infof("access token refreshed, valid until %s", a.expiry.Format(time.RFC3339))

	if a.persist != nil {
		if errSave := a.persist.SaveToken(ctx, token, a.expiry); errSave != nil {
			log.Warnf("persist refreshed token: %v", errSave)
		}
	}
	return nil
}

// fetchDefaultToken obtains a token through application default
// credentials with the cloud-platform scope.
func (a *ServiceAccountAuth) fetchDefaultToken(ctx context.Context) (string, time.Time, error) {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("find default credentials: %w", err)
	}
	tok, err := creds.TokenSource.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("get access token: %w", err)
	}
	return tok.AccessToken, tok.Expiry.UTC(), nil
}

// Start performs one immediate refresh and, when auto-refresh is on,
// runs the periodic refresh ticker on its own goroutine, decoupled from
// request handling.
func (a *ServiceAccountAuth) Start(ctx context.Context) {
	if err := a.Refresh(ctx); err != nil {
		log.Errorf("initial token refresh failed: %v", err)
	}
	if !a.autoRefresh {
		return
	}
	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.Refresh(context.Background()); err != nil {
					log.Errorf("background token refresh failed: %v", err)
				}
			case <-a.stopCh:
				return
			}
		}
	}()
	log.Infof("background token refresh every %s", refreshInterval)
}

// Stop cancels the background refresh ticker.
func (a *ServiceAccountAuth) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// baseURL returns the regional Vertex host; the "global" location maps
// to the global host.
func (a *ServiceAccountAuth) baseURL() string {
	if a.location == "global" {
		return "https://aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", a.location)
}

// BuildCompletionsURL returns the OpenAI-compatible Vertex endpoint for
// the given path suffix, such as "/chat/completions".
func (a *ServiceAccountAuth) BuildCompletionsURL(path string) (string, error) {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/endpoints/openapi%s", a.baseURL(), a.projectID, a.location, path), nil
}

// BuildGenerateURL returns the native generate endpoint for the model
// and RPC method (generateContent or streamGenerateContent).
func (a *ServiceAccountAuth) BuildGenerateURL(model, method string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s", a.baseURL(), a.projectID, a.location, model, method)
}

// BuildModelsURL returns the beta catalog endpoint for a publisher.
func (a *ServiceAccountAuth) BuildModelsURL(publisher string) string {
	return fmt.Sprintf("%s/v1beta1/publishers/%s/models", a.baseURL(), publisher)
}

// ResolveProjectID returns the project id carried by application default
// credentials. Used at startup when no project id is configured.
func ResolveProjectID(ctx context.Context) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return "", fmt.Errorf("find default credentials: %w", err)
	}
	if strings.TrimSpace(creds.ProjectID) == "" {
		return "", fmt.Errorf("project id not found in default credentials")
	}
	return creds.ProjectID, nil
}
