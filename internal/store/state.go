package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// State is the parsed view of the persisted document.
type State struct {
	AccessToken string
	TokenExpiry time.Time
	ProxyKey    string
}

// Manager mediates between the auth provider and a StateStore. It keeps
// the last loaded raw document and patches only the token fields on
// save, so unknown fields (such as a proxy key placed in the document by
// hand) survive rewrites.
type Manager struct {
	mu    sync.Mutex
	store StateStore
	doc   []byte
}

// NewManager wraps a StateStore.
func NewManager(store StateStore) *Manager {
	return &Manager{store: store}
}

// Load reads and parses the state document. A missing document yields an
// empty State.
func (m *Manager) Load(ctx context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		m.doc = []byte("{}")
		return &State{}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("state: document is not valid JSON")
	}
	m.doc = data

	st := &State{
		AccessToken: gjson.GetBytes(data, "access_token").String(),
		ProxyKey:    gjson.GetBytes(data, "key").String(),
	}
	if raw := gjson.GetBytes(data, "token_expiry").String(); raw != "" {
		if expiry, errParse := time.Parse(time.RFC3339, raw); errParse == nil {
			st.TokenExpiry = expiry.UTC()
		}
	}
	return st, nil
}

// SaveToken patches the token fields into the document and persists it.
// Implements the auth package's TokenPersister.
func (m *Manager) SaveToken(ctx context.Context, accessToken string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.doc) == 0 {
		m.doc = []byte("{}")
	}
	doc, err := sjson.SetBytes(m.doc, "access_token", accessToken)
	if err != nil {
		return fmt.Errorf("state: set access_token: %w", err)
	}
	doc, err = sjson.SetBytes(doc, "token_expiry", expiry.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("state: set token_expiry: %w", err)
	}
	if err = m.store.Save(ctx, doc); err != nil {
		return err
	}
	m.doc = doc
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
