// Package catalog aggregates upstream model listings across publishers
// into the OpenAI model-list shape.
package catalog

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/VertexProxyAPI/internal/auth"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	// fetchAttempts bounds retries of transport-level failures per
	// publisher. Non-200 responses are not retried.
	fetchAttempts = 3
	retryDelay    = 200 * time.Millisecond
)

// Model is one entry of the aggregated listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// Aggregator fans catalog queries out per publisher and merges results.
type Aggregator struct {
	auth   auth.Provider
	client *http.Client
}

// New creates an aggregator sharing the process-wide auth provider and
// HTTP client.
func New(provider auth.Provider, client *http.Client) *Aggregator {
	return &Aggregator{auth: provider, client: client}
}

// List queries every configured publisher concurrently and merges the
// results in publisher order. A publisher that keeps failing contributes
// zero entries without failing the listing; only a caller credential
// problem aborts the whole call.
func (a *Aggregator) List(ctx context.Context, cfg *config.Config) ([]Model, error) {
	headers, err := a.auth.GetHeaders(ctx)
	if err != nil {
		return nil, err
	}

	publishers := cfg.Publishers
	if cfg.AuthMode() == config.AuthModeAPIKey {
		publishers = []string{"google"}
	}

	results := make([][]Model, len(publishers))
	g, gctx := errgroup.WithContext(ctx)
	for i, publisher := range publishers {
		g.Go(func() error {
			results[i] = a.fetchPublisher(gctx, publisher, headers)
			return nil
		})
	}
	_ = g.Wait()

	var models []Model
	for _, list := range results {
		models = append(models, list...)
	}

	if cfg.FilterModelNames && len(cfg.ModelNameFilters) > 0 {
		filtered := models[:0]
		for _, m := range models {
			for _, prefix := range cfg.ModelNameFilters {
				if strings.HasPrefix(m.ID, prefix) {
					filtered = append(filtered, m)
					break
				}
			}
		}
		models = filtered
	}

	for _, id := range cfg.ExtraModels {
		owner := "custom"
		if idx := strings.Index(id, "/"); idx > 0 {
			owner = id[:idx]
		}
		models = append(models, Model{ID: id, Object: "model", OwnedBy: owner})
	}

	return models, nil
}

// fetchPublisher queries one publisher's catalog, retrying transport
// failures a bounded number of times.
func (a *Aggregator) fetchPublisher(ctx context.Context, publisher string, headers map[string]string) []Model {
	url := a.auth.BuildModelsURL(publisher)

	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			log.Warnf("models: %s: build request: %v", publisher, err)
			return nil
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, errDo := a.client.Do(req)
		if errDo != nil {
			if attempt < fetchAttempts {
				log.Warnf("models: %s retry: %v", publisher, errDo)
				select {
				case <-time.After(retryDelay):
				case <-ctx.Done():
					return nil
				}
				continue
			}
			log.Warnf("models: %s failed: %v", publisher, errDo)
			return nil
		}

		body, errRead := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if errRead != nil {
			if attempt < fetchAttempts {
				log.Warnf("models: %s retry: %v", publisher, errRead)
				select {
				case <-time.After(retryDelay):
				case <-ctx.Done():
					return nil
				}
				continue
			}
			log.Warnf("models: %s failed: %v", publisher, errRead)
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			log.Warnf("models: %s: status %d", publisher, resp.StatusCode)
			return nil
		}
		return parseCatalog(body)
	}
	return nil
}

// parseCatalog extracts model entries from either upstream catalog
// shape. Entries with an unexpected name layout are skipped.
func parseCatalog(body []byte) []Model {
	var models []Model

	// Vertex shape: publisherModels[].name = publishers/<pub>/models/<id>
	gjson.GetBytes(body, "publisherModels").ForEach(func(_, entry gjson.Result) bool {
		parts := strings.Split(entry.Get("name").String(), "/")
		if len(parts) == 4 && parts[0] == "publishers" && parts[2] == "models" {
			models = append(models, Model{
				ID:      parts[1] + "/" + parts[3],
				Object:  "model",
				OwnedBy: parts[1],
			})
		}
		return true
	})

	// AI-Studio shape: models[].name = models/<id>, always owned by google.
	gjson.GetBytes(body, "models").ForEach(func(_, entry gjson.Result) bool {
		parts := strings.Split(entry.Get("name").String(), "/")
		if len(parts) == 2 && parts[0] == "models" && parts[1] != "" {
			models = append(models, Model{
				ID:      "google/" + parts[1],
				Object:  "model",
				OwnedBy: "google",
			})
		}
		return true
	})

	return models
}
