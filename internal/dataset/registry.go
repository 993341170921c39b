// internal/dataset/registry.go
package dataset

import (
	"fmt"
	"sort"
	"sync"
)

var (
	regMu    sync.RWMutex
	registry = map[string]*Schema{}
)

// Register rejestruje schemat pod jego typem (wywoływane z init()).
func Register(s *Schema) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[s.Type] = s
}

func Lookup(datasetType string) (*Schema, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	s, ok := registry[datasetType]
	return s, ok
}

// MustLookup zwraca schemat albo błąd z listą znanych typów.
func MustLookup(datasetType string) (*Schema, error) {
	if s, ok := Lookup(datasetType); ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown dataset type %q (known: %v)", datasetType, Types())
}

func Types() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
