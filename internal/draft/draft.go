// Package draft przechowuje stan kreatora importu między wizytami użytkownika.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bartek5186/pricebridge/internal/reconcile"
)

// Version to bieżąca wersja formatu szkicu. Szkic w innej wersji traktujemy jak brak szkicu.
const Version = 1

// Snapshot to zapisany stan kreatora dla pary (użytkownik, typ zbioru).
type Snapshot struct {
	Version     int                   `json:"version"`
	Dataset     string                `json:"dataset"`
	FileName    string                `json:"file_name"`
	Headers     []string              `json:"headers"`
	Mapping     map[string]string     `json:"mapping"`
	Step        string                `json:"step"`
	Resolutions reconcile.Resolutions `json:"resolutions,omitempty"`
	SavedAt     time.Time             `json:"saved_at"`
}

// Store to backend szkiców. Load zwraca (nil, nil), gdy szkicu nie ma.
type Store interface {
	Load(ctx context.Context, userID, dataset string) (*Snapshot, error)
	Save(ctx context.Context, userID string, s *Snapshot) error
	Clear(ctx context.Context, userID, dataset string) error
}

func key(userID, dataset string) string {
	return fmt.Sprintf("pricebridge:draft:%s:%s", userID, dataset)
}

func encode(s *Snapshot, now time.Time) ([]byte, error) {
	if s.Dataset == "" {
		return nil, fmt.Errorf("draft without dataset")
	}
	s.Version = Version
	s.SavedAt = now
	return json.Marshal(s)
}

// decode odrzuca uszkodzone i nieaktualne szkice.
func decode(b []byte) *Snapshot {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil || s.Version != Version {
		return nil
	}
	return &s
}

// MemoryStore trzyma szkice w pamięci procesu (tryb lokalny, testy).
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}, now: time.Now}
}

func (m *MemoryStore) Load(_ context.Context, userID, dataset string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key(userID, dataset)]
	if !ok {
		return nil, nil
	}
	return decode(b), nil
}

func (m *MemoryStore) Save(_ context.Context, userID string, s *Snapshot) error {
	b, err := encode(s, m.now().UTC())
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key(userID, s.Dataset)] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID, dataset string) error {
	m.mu.Lock()
	delete(m.data, key(userID, dataset))
	m.mu.Unlock()
	return nil
}
