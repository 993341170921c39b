package db

import (
	"fmt"
)

// Migrate tworzy/aktualizuje schemat bazy.
// Kolejność:
//  1. AutoMigrate (indeksy unikalne z tagów)
//  2. upewnij się, że indeks klucza mapowań istnieje (stare bazy bez tagu)
func (h *Handle) Migrate() error {
	gdb := h.DB

	if err := gdb.AutoMigrate(
		&BrandMapping{},
		&CIRClassification{},
		&CIRSegment{},
		&ImportBatch{},
		&ChangeLog{},
		&KV{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}

	if !gdb.Migrator().HasIndex(&BrandMapping{}, "uniq_mapping_key") {
		if err := gdb.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS uniq_mapping_key
			ON brand_category_mappings(marque, cat_fab);
		`).Error; err != nil {
			return fmt.Errorf("create index uniq_mapping_key: %w", err)
		}
	}

	return nil
}
