package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/db"
)

var ErrSessionClosed = errors.New("write session is closed")

// Store to warstwa zapisu/odczytu tabel importowanych zbiorów i batchy.
type Store struct {
	db       *gorm.DB
	log      zerolog.Logger
	pageSize int
	now      func() time.Time
}

func New(gdb *gorm.DB, log zerolog.Logger, lookupPageSize int) *Store {
	if lookupPageSize <= 0 {
		lookupPageSize = 1000
	}
	return &Store{
		db:       gdb,
		log:      log.With().Str("component", "store").Logger(),
		pageSize: lookupPageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) DB() *gorm.DB { return s.db }

// Session niesie kontekst audytu (batch, powód, użytkownik) do każdej mutacji.
// Nie ma stanu globalnego: kontekst żyje tylko w transakcji danej operacji.
type Session struct {
	BatchID string
	Reason  string
	UserID  string

	closed atomic.Bool
}

// Begin otwiera sesję zapisu dla batcha. Bez batch id i użytkownika nie ma audytu,
// więc odmawiamy przed jakąkolwiek mutacją.
func (s *Store) Begin(batchID, reason, userID string) (*Session, error) {
	if batchID == "" {
		return nil, apperr.Integrity("write session requires a batch id")
	}
	if userID == "" {
		return nil, apperr.Integrity("write session requires a user id")
	}
	return &Session{BatchID: batchID, Reason: reason, UserID: userID}, nil
}

// Close kończy sesję; kolejne zapisy przez nią zwracają ErrSessionClosed.
func (ss *Session) Close() { ss.closed.Store(true) }

func (ss *Session) Closed() bool { return ss.closed.Load() }

// write uruchamia fn w transakcji z ustawionym kontekstem audytu.
func (s *Store) write(ctx context.Context, sess *Session, fn func(tx *gorm.DB) error) error {
	if sess == nil || sess.Closed() {
		return ErrSessionClosed
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setAuditContext(tx, sess); err != nil {
			return err
		}
		return fn(tx)
	})
}

// setAuditContext: na Postgresie zmienne sesji dla triggerów audytu.
// is_local=true, więc znikają razem z transakcją (commit albo rollback).
func setAuditContext(tx *gorm.DB, sess *Session) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_batch_id', ?, true), set_config('app.change_reason', ?, true)",
		sess.BatchID, sess.Reason,
	).Error
}

func (s *Store) changeLogs(sess *Session, schema *dataset.Schema, op string, recs []dataset.Record) []db.ChangeLog {
	out := make([]db.ChangeLog, 0, len(recs))
	for _, r := range recs {
		payload, _ := json.Marshal(r)
		key := ""
		if schema.NaturalKey != nil {
			key = schema.NaturalKey(r)
		}
		out = append(out, db.ChangeLog{
			BatchID:   sess.BatchID,
			Table:     schema.Table,
			RowKey:    key,
			Operation: op,
			Reason:    sess.Reason,
			UserID:    sess.UserID,
			Payload:   datatypes.JSON(payload),
		})
	}
	return out
}

func (s *Store) ChangeLogs(ctx context.Context, batchID string) ([]db.ChangeLog, error) {
	var out []db.ChangeLog
	err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id").Find(&out).Error
	if err != nil {
		return nil, apperr.Persistence("load change log", err)
	}
	return out, nil
}
