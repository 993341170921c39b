package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/db"
)

var ErrBadTransition = errors.New("invalid batch status transition")

// allowedFrom: stany, z których wolno przejść do danego stanu.
// Stany końcowe (completed, failed) nie mają wyjścia.
var allowedFrom = map[string][]string{
	db.BatchProcessing: {db.BatchPending, db.BatchProcessing},
	db.BatchCompleted:  {db.BatchProcessing},
	db.BatchFailed:     {db.BatchPending, db.BatchProcessing},
}

// CreateBatch zapisuje nowy batch w stanie pending. Batch bez użytkownika
// to błąd integralności.
func (s *Store) CreateBatch(ctx context.Context, b *db.ImportBatch) error {
	if b.UserID == "" {
		return apperr.Integrity("import batch requires a user id")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = db.BatchPending
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return apperr.Persistence("create import batch", err)
	}
	s.log.Info().Str("batch_id", b.ID).Str("dataset", b.DatasetType).Str("file", b.FileName).Msg("batch created")
	return nil
}

// TransitionBatch zmienia status warunkowym UPDATE (WHERE status IN dozwolone),
// razem z dodatkowymi polami (liczniki, błąd, podsumowanie).
func (s *Store) TransitionBatch(ctx context.Context, id, to string, fields map[string]any) error {
	from, ok := allowedFrom[to]
	if !ok {
		return fmt.Errorf("%w: to %q", ErrBadTransition, to)
	}

	upd := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		upd[k] = v
	}
	upd["status"] = to
	if to == db.BatchCompleted || to == db.BatchFailed {
		now := s.now()
		upd["completed_at"] = &now
	}

	res := s.db.WithContext(ctx).Model(&db.ImportBatch{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(upd)
	if res.Error != nil {
		return apperr.Persistence("update import batch", res.Error)
	}
	if res.RowsAffected == 0 {
		cur, err := s.GetBatch(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s (batch %s)", ErrBadTransition, cur.Status, to, id)
	}
	return nil
}

// ClaimBatch przejmuje batch na wyłączność: tylko pending -> processing.
// Drugi worker z tym samym zleceniem dostaje ErrBadTransition.
func (s *Store) ClaimBatch(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&db.ImportBatch{}).
		Where("id = ? AND status = ?", id, db.BatchPending).
		Update("status", db.BatchProcessing)
	if res.Error != nil {
		return apperr.Persistence("claim import batch", res.Error)
	}
	if res.RowsAffected == 0 {
		cur, err := s.GetBatch(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s (batch %s, already claimed)", ErrBadTransition, cur.Status, db.BatchProcessing, id)
	}
	return nil
}

// ReportProgress zapisuje postęp na granicy chunka (status zostaje processing).
func (s *Store) ReportProgress(ctx context.Context, id string, processed int) error {
	return s.TransitionBatch(ctx, id, db.BatchProcessing, map[string]any{"processed_lines": processed})
}

// FailBatch oznacza batch jako failed. Błąd zapisu jest tylko logowany,
// żeby nie przykryć pierwotnego błędu.
func (s *Store) FailBatch(ctx context.Context, id string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.TransitionBatch(context.WithoutCancel(ctx), id, db.BatchFailed, map[string]any{"last_error": msg}); err != nil {
		s.log.Error().Err(err).Str("batch_id", id).Msg("mark batch failed")
		return
	}
	s.log.Warn().Str("batch_id", id).Str("error", msg).Msg("batch failed")
}

func (s *Store) GetBatch(ctx context.Context, id string) (*db.ImportBatch, error) {
	var b db.ImportBatch
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("import batch " + id + " not found")
	}
	if err != nil {
		return nil, apperr.Persistence("load import batch", err)
	}
	return &b, nil
}

// ListBatches zwraca ostatnie batche (userID == "" -> wszystkich użytkowników).
func (s *Store) ListBatches(ctx context.Context, userID string, limit int) ([]db.ImportBatch, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var out []db.ImportBatch
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Persistence("list import batches", err)
	}
	return out, nil
}

// FindCompletedBySHA szuka wcześniej ukończonego importu tego samego pliku.
func (s *Store) FindCompletedBySHA(ctx context.Context, datasetType, sha string) (*db.ImportBatch, error) {
	var b db.ImportBatch
	err := s.db.WithContext(ctx).
		Where("dataset_type = ? AND sha256 = ? AND status = ?", datasetType, sha, db.BatchCompleted).
		Order("created_at DESC").
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("lookup import batch by sha", err)
	}
	return &b, nil
}
