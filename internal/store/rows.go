package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/db"
)

// Change to jeden zapis upsertu. Match != nil: aktualizacja istniejącego wiersza
// po kolumnach klucza, inaczej insert (z ON CONFLICT na kluczu).
type Change struct {
	Match  dataset.Record
	Values dataset.Record
}

// FetchExisting pobiera istniejące wiersze dla kluczy naturalnych rekordów,
// stronami po pageSize kluczy. Zapytanie jest nadzbiorem (LOWER na kolumnach
// klucza), dokładne dopasowanie robi NaturalKey.
func (s *Store) FetchExisting(ctx context.Context, schema *dataset.Schema, recs []dataset.Record) (map[string]dataset.Record, error) {
	byKey := make(map[string]dataset.Record, len(recs))
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		k := schema.NaturalKey(r)
		if k == "" {
			continue
		}
		if _, ok := byKey[k]; ok {
			continue
		}
		byKey[k] = r
		keys = append(keys, k)
	}

	out := make(map[string]dataset.Record, len(keys))
	for start := 0; start < len(keys); start += s.pageSize {
		end := start + s.pageSize
		if end > len(keys) {
			end = len(keys)
		}
		page := keys[start:end]

		q := s.db.WithContext(ctx).Table(schema.Table)
		for _, col := range schema.KeyColumns {
			vals := make([]string, 0, len(page))
			seen := map[string]struct{}{}
			for _, k := range page {
				v := strings.ToLower(strings.TrimSpace(byKey[k].Text(col)))
				if _, ok := seen[v]; ok {
					continue
				}
				seen[v] = struct{}{}
				vals = append(vals, v)
			}
			q = q.Where(fmt.Sprintf("LOWER(%s) IN ?", col), vals)
		}

		var rows []map[string]any
		if err := q.Find(&rows).Error; err != nil {
			return nil, apperr.Persistence("lookup existing "+schema.Table, err)
		}
		for _, row := range rows {
			rec := dataset.Record(row)
			k := schema.NaturalKey(rec)
			if _, wanted := byKey[k]; wanted {
				out[k] = rec
			}
		}
		s.log.Debug().Str("table", schema.Table).Int("page_keys", len(page)).Int("found", len(rows)).Msg("lookup page")
	}
	return out, nil
}

// InsertChunk wstawia jeden chunk nowych wierszy w jednej transakcji.
func (s *Store) InsertChunk(ctx context.Context, sess *Session, schema *dataset.Schema, recs []dataset.Record) error {
	if len(recs) == 0 {
		return nil
	}
	now := s.now()
	rows := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		row := payload(schema, r)
		row["created_at"] = now
		row["updated_at"] = now
		rows = append(rows, row)
	}
	return s.write(ctx, sess, func(tx *gorm.DB) error {
		if err := tx.Table(schema.Table).Create(&rows).Error; err != nil {
			return apperr.Persistence("insert into "+schema.Table, err)
		}
		return s.logChanges(tx, sess, schema, "insert", recs)
	})
}

// UpdateByKey aktualizuje jeden wiersz po kolumnach klucza. Kolumny generowane
// są wycinane z payloadu. Zwraca liczbę zmienionych wierszy.
func (s *Store) UpdateByKey(ctx context.Context, sess *Session, schema *dataset.Schema, match, values dataset.Record) (int64, error) {
	where, err := keyWhere(schema, match)
	if err != nil {
		return 0, err
	}
	upd := payload(schema, values)
	upd["updated_at"] = s.now()

	var affected int64
	err = s.write(ctx, sess, func(tx *gorm.DB) error {
		res := tx.Table(schema.Table).Where(where).Updates(upd)
		if res.Error != nil {
			return apperr.Persistence("update "+schema.Table, res.Error)
		}
		affected = res.RowsAffected
		return s.logChanges(tx, sess, schema, "update", []dataset.Record{values})
	})
	return affected, err
}

// UpsertChunk zapisuje chunk zmian w jednej transakcji: aktualizacje po kluczu
// istniejącego wiersza, resztę jako insert z ON CONFLICT na kolumnach klucza.
func (s *Store) UpsertChunk(ctx context.Context, sess *Session, schema *dataset.Schema, changes []Change) (created, updated int, err error) {
	if len(changes) == 0 {
		return 0, 0, nil
	}
	now := s.now()

	var inserts []map[string]any
	var logged []dataset.Record
	err = s.write(ctx, sess, func(tx *gorm.DB) error {
		created, updated = 0, 0
		inserts = inserts[:0]
		logged = logged[:0]

		for _, ch := range changes {
			logged = append(logged, ch.Values)
			if ch.Match == nil {
				row := payload(schema, ch.Values)
				row["created_at"] = now
				row["updated_at"] = now
				inserts = append(inserts, row)
				continue
			}
			where, werr := keyWhere(schema, ch.Match)
			if werr != nil {
				return werr
			}
			upd := payload(schema, ch.Values)
			upd["updated_at"] = now
			if e := tx.Table(schema.Table).Where(where).Updates(upd).Error; e != nil {
				return apperr.Persistence("update "+schema.Table, e)
			}
			updated++
		}

		if len(inserts) > 0 {
			keyCols := make([]clause.Column, 0, len(schema.KeyColumns))
			for _, c := range schema.KeyColumns {
				keyCols = append(keyCols, clause.Column{Name: c})
			}
			assign := append(presentNonKeyFields(schema, inserts), "updated_at")
			e := tx.Table(schema.Table).Clauses(clause.OnConflict{
				Columns:   keyCols,
				DoUpdates: clause.AssignmentColumns(assign),
			}).Create(&inserts).Error
			if e != nil {
				return apperr.Persistence("upsert into "+schema.Table, e)
			}
			created = len(inserts)
		}
		return s.logChanges(tx, sess, schema, "upsert", logged)
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// ReplaceAll czyści całą tabelę i wstawia rekordy chunkami, w jednej transakcji.
func (s *Store) ReplaceAll(ctx context.Context, sess *Session, schema *dataset.Schema, recs []dataset.Record, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	now := s.now()
	return s.write(ctx, sess, func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM " + tx.Statement.Quote(schema.Table))
		if res.Error != nil {
			return apperr.Persistence("purge "+schema.Table, res.Error)
		}
		s.log.Info().Str("batch_id", sess.BatchID).Str("table", schema.Table).Int64("purged", res.RowsAffected).Msg("table purged")
		pl, _ := json.Marshal(map[string]any{"purged": res.RowsAffected})
		purge := db.ChangeLog{
			BatchID:   sess.BatchID,
			Table:     schema.Table,
			Operation: "purge",
			Reason:    sess.Reason,
			UserID:    sess.UserID,
			Payload:   datatypes.JSON(pl),
		}
		if err := tx.Create(&purge).Error; err != nil {
			return apperr.Persistence("write change log", err)
		}

		for start := 0; start < len(recs); start += chunkSize {
			end := start + chunkSize
			if end > len(recs) {
				end = len(recs)
			}
			rows := make([]map[string]any, 0, end-start)
			for _, r := range recs[start:end] {
				row := payload(schema, r)
				row["created_at"] = now
				row["updated_at"] = now
				rows = append(rows, row)
			}
			if err := tx.Table(schema.Table).Create(&rows).Error; err != nil {
				return apperr.Persistence(fmt.Sprintf("insert chunk at row %d into %s", start, schema.Table), err)
			}
			if err := s.logChanges(tx, sess, schema, "insert", recs[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) logChanges(tx *gorm.DB, sess *Session, schema *dataset.Schema, op string, recs []dataset.Record) error {
	logs := s.changeLogs(sess, schema, op, recs)
	if len(logs) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(&logs, 500).Error; err != nil {
		return apperr.Persistence("write change log", err)
	}
	return nil
}

// payload zostawia tylko zadeklarowane pola schematu, bez kolumn generowanych.
func payload(schema *dataset.Schema, r dataset.Record) map[string]any {
	out := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		if schema.IsGenerated(f.Name) {
			continue
		}
		if v, ok := r[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

func keyWhere(schema *dataset.Schema, match dataset.Record) (map[string]any, error) {
	where := make(map[string]any, len(schema.KeyColumns))
	for _, c := range schema.KeyColumns {
		v, ok := match[c]
		if !ok || dataset.AsString(v) == "" {
			return nil, apperr.BadRequest(fmt.Sprintf("update of %s without key column %s", schema.Table, c), nil)
		}
		where[c] = v
	}
	return where, nil
}

// presentNonKeyFields to nonKeyFields ograniczone do kolumn obecnych w wierszach:
// kolumny niezmapowane w pliku nie są nadpisywane przy konflikcie.
func presentNonKeyFields(schema *dataset.Schema, rows []map[string]any) []string {
	var out []string
	for _, f := range nonKeyFields(schema) {
		for _, r := range rows {
			if _, ok := r[f]; ok {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func nonKeyFields(schema *dataset.Schema) []string {
	out := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		key := false
		for _, c := range schema.KeyColumns {
			if c == f.Name {
				key = true
				break
			}
		}
		if !key && !schema.IsGenerated(f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}
