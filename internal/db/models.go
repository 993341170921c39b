// internal/db/models.go
package db

import (
	"time"

	"gorm.io/datatypes"
)

// brand_category_mappings
type BrandMapping struct {
	ID        uint    `gorm:"primaryKey"`
	Segment   string  `gorm:"size:120;index"`
	Marque    string  `gorm:"size:120;uniqueIndex:uniq_mapping_key"`
	CatFab    string  `gorm:"size:60;uniqueIndex:uniq_mapping_key"`
	CatFabL   *string `gorm:"size:255"`
	Strategiq int     `gorm:"default:0"`
	Fsmega    int     `gorm:"default:1"`
	Fsfam     int     `gorm:"default:99"`
	Fssfa     int     `gorm:"default:99"`
	CodifFair *string `gorm:"size:60"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BrandMapping) TableName() string { return "brand_category_mappings" }

// cir_classifications
type CIRClassification struct {
	ID                  uint   `gorm:"primaryKey"`
	FsmegaCode          int    `gorm:"index"`
	FsmegaDesignation   string `gorm:"size:255"`
	FsfamCode           int
	FsfamDesignation    string `gorm:"size:255"`
	FssfaCode           int
	FssfaDesignation    string  `gorm:"size:255"`
	CombinedCode        string  `gorm:"size:40;uniqueIndex"`
	CombinedDesignation *string `gorm:"size:500"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (CIRClassification) TableName() string { return "cir_classifications" }

// cir_segments
type CIRSegment struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"size:40;uniqueIndex"`
	Designation string `gorm:"size:255"`
	SortOrder   int    `gorm:"default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (CIRSegment) TableName() string { return "cir_segments" }

const (
	BatchPending    = "pending"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
)

// import_batches
type ImportBatch struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	FileName       string         `gorm:"size:255" json:"file_name"`
	UserID         string         `gorm:"size:64;index" json:"user_id"`
	DatasetType    string         `gorm:"size:40;index" json:"dataset_type"`
	Status         string         `gorm:"size:16;index;default:pending" json:"status"`
	TotalLines     int            `json:"total_lines"`
	ProcessedLines int            `json:"processed_lines"`
	CreatedCount   int            `json:"created_count"`
	UpdatedCount   int            `json:"updated_count"`
	SkippedCount   int            `json:"skipped_count"`
	DiffSummary    datatypes.JSON `json:"diff_summary,omitempty"`
	TemplateID     *string        `gorm:"size:64" json:"template_id,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	SHA256         string         `gorm:"size:64;index" json:"sha256,omitempty"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func (b *ImportBatch) Terminal() bool {
	return b.Status == BatchCompleted || b.Status == BatchFailed
}

// change_log: ślad audytowy każdej mutacji wykonanej w ramach batcha
type ChangeLog struct {
	ID        uint           `gorm:"primaryKey"`
	BatchID   string         `gorm:"size:36;index"`
	Table     string         `gorm:"column:table_name;size:64"`
	RowKey    string         `gorm:"size:255;index"`
	Operation string         `gorm:"size:16"` // insert/update/upsert/purge
	Reason    string         `gorm:"size:255"`
	UserID    string         `gorm:"size:64"`
	Payload   datatypes.JSON `json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (ChangeLog) TableName() string { return "change_log" }

// kv: proste klucz -> wartość (szkice kreatora przy drafts.backend=db)
type KV struct {
	K         string `gorm:"primaryKey;size:255"`
	V         string `gorm:"type:text"`
	ExpiresAt *time.Time
}

func (KV) TableName() string { return "kv" }
