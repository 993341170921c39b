package draft

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bartek5186/pricebridge/internal/db"
)

// DBStore trzyma szkice w tabeli kv (gdy nie ma Redisa, a jest kilka instancji).
type DBStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewDBStore(gdb *gorm.DB, ttl time.Duration) *DBStore {
	return &DBStore{db: gdb, ttl: ttl, now: time.Now}
}

func (d *DBStore) Load(ctx context.Context, userID, dataset string) (*Snapshot, error) {
	var row db.KV
	err := d.db.WithContext(ctx).Where("k = ?", key(userID, dataset)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.ExpiresAt != nil && !d.now().Before(*row.ExpiresAt) {
		return nil, nil
	}
	return decode([]byte(row.V)), nil
}

func (d *DBStore) Save(ctx context.Context, userID string, s *Snapshot) error {
	now := d.now().UTC()
	b, err := encode(s, now)
	if err != nil {
		return err
	}
	row := db.KV{K: key(userID, s.Dataset), V: string(b)}
	if d.ttl > 0 {
		exp := now.Add(d.ttl)
		row.ExpiresAt = &exp
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v", "expires_at"}),
	}).Create(&row).Error
}

func (d *DBStore) Clear(ctx context.Context, userID, dataset string) error {
	return d.db.WithContext(ctx).Where("k = ?", key(userID, dataset)).Delete(&db.KV{}).Error
}

// Purge usuwa wygasłe szkice.
func (d *DBStore) Purge(ctx context.Context) (int64, error) {
	res := d.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", d.now().UTC()).Delete(&db.KV{})
	return res.RowsAffected, res.Error
}
