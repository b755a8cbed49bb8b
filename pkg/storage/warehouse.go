package storage

import (
	"context"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"gorm.io/gorm"
)

const (
	SideExposed   = "exposed"
	SideUnexposed = "unexposed"
)

type CohortMember struct {
	ID        uint      `gorm:"primaryKey;column:id"`
	RunID     string    `gorm:"column:run_id;index"`
	Side      string    `gorm:"column:side"`
	FamilyID  *string   `gorm:"column:family_id"`
	ChildID   string    `gorm:"column:child_id"`
	IndexDate time.Time `gorm:"column:index_date"`
	MatchedTo *string   `gorm:"column:matched_to"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (CohortMember) TableName() string {
	return "cohort_members"
}

// Warehouse keeps every run's cohort pair in Postgres.
type Warehouse struct {
	db *gorm.DB
}

func NewWarehouse(db *gorm.DB) *Warehouse {
	return &Warehouse{db: db}
}

func (w *Warehouse) AutoMigrate() error {
	return w.db.AutoMigrate(&CohortMember{})
}

// WriteCohorts replaces the members of runID in a single transaction.
func (w *Warehouse) WriteCohorts(ctx context.Context, runID string, exposed []models.ExposedChild, matched []models.MatchedChild) (map[string]string, error) {
	now := time.Now().UTC()
	members := make([]CohortMember, 0, len(exposed)+len(matched))
	for _, e := range exposed {
		members = append(members, CohortMember{
			RunID: runID, Side: SideExposed, FamilyID: e.FamilyID,
			ChildID: e.ChildID, IndexDate: e.IndexDate, CreatedAt: now,
		})
	}
	for _, m := range matched {
		members = append(members, CohortMember{
			RunID: runID, Side: SideUnexposed, FamilyID: models.StringPtr(m.FamilyID),
			ChildID: m.ChildID, IndexDate: m.IndexDate, MatchedTo: models.StringPtr(m.MatchedTo), CreatedAt: now,
		})
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&CohortMember{}).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		return tx.CreateInBatches(members, 500).Error
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"run_id":  runID,
		"members": len(members),
	}).Info("cohorts written to warehouse")
	return map[string]string{"warehouse": "cohort_members?run_id=" + runID}, nil
}

func (w *Warehouse) Members(ctx context.Context, runID, side string) ([]CohortMember, error) {
	var members []CohortMember
	tx := w.db.WithContext(ctx).Where("run_id = ?", runID)
	if side != "" {
		tx = tx.Where("side = ?", side)
	}
	if err := tx.Order("id").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}
