package cohort

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/observability/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

const (
	EventCohortCompleted = "cohort.completed"
	EventCohortFailed    = "cohort.failed"
)

var ErrRunNotFound = errors.New("cohort run not found")

type RunRecord struct {
	ID           uuid.UUID      `gorm:"primaryKey;column:id"`
	Status       string         `gorm:"column:status"`
	RequestedBy  string         `gorm:"column:requested_by"`
	MatchPolicy  string         `gorm:"column:match_policy"`
	ExposedCount int            `gorm:"column:exposed_count"`
	MatchedCount int            `gorm:"column:matched_count"`
	Warnings     datatypes.JSON `gorm:"column:warnings"`
	ErrorMessage string         `gorm:"column:error_message"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	StartedAt    *time.Time     `gorm:"column:started_at"`
	CompletedAt  *time.Time     `gorm:"column:completed_at"`
}

func (RunRecord) TableName() string {
	return "cohort_runs"
}

// RunStore records the life cycle of cohort runs.
type RunStore interface {
	Create(ctx context.Context, run *RunRecord) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	Get(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	List(ctx context.Context, limit int) ([]RunRecord, error)
}

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&RunRecord{})
}

func (r *RunRepository) Create(ctx context.Context, run *RunRecord) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *RunRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&RunRecord{}).Where("id = ?", id).Updates(updates).Error
}

func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	var run RunRecord
	result := r.db.WithContext(ctx).First(&run, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	return &run, result.Error
}

func (r *RunRepository) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunRecord
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func recordToDomain(run *RunRecord) models.CohortRun {
	var warnings []string
	if len(run.Warnings) > 0 {
		_ = json.Unmarshal(run.Warnings, &warnings)
	}
	return models.CohortRun{
		ID:           run.ID,
		Status:       run.Status,
		RequestedBy:  run.RequestedBy,
		MatchPolicy:  run.MatchPolicy,
		ExposedCount: run.ExposedCount,
		MatchedCount: run.MatchedCount,
		Warnings:     warnings,
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
	}
}

// Job performs one cohort build for a recorded run.
type Job func(ctx context.Context, runID string, req models.CohortBuildRequest) (models.CohortResult, error)

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) (models.Event, error)
}

// Runner executes queued runs on a bounded pool. The default of one worker
// matches the single-writer cache directory.
type Runner struct {
	store   RunStore
	job     Job
	events  EventPublisher
	workers chan struct{}
	wg      sync.WaitGroup
}

func NewRunner(store RunStore, job Job, events EventPublisher, maxWorkers int) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Runner{
		store:   store,
		job:     job,
		events:  events,
		workers: make(chan struct{}, maxWorkers),
	}
}

func (r *Runner) Enqueue(ctx context.Context, req models.CohortBuildRequest) (models.CohortRun, error) {
	policy := strings.TrimSpace(req.MatchPolicy)
	if policy == "" {
		policy = "default"
	}
	run := &RunRecord{
		ID:          uuid.New(),
		Status:      RunStatusQueued,
		RequestedBy: req.RequestedBy,
		MatchPolicy: policy,
		Warnings:    datatypes.JSON("[]"),
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.Create(ctx, run); err != nil {
		return models.CohortRun{}, err
	}

	r.wg.Add(1)
	go r.run(run.ID, req)

	return recordToDomain(run), nil
}

func (r *Runner) Get(ctx context.Context, id uuid.UUID) (models.CohortRun, error) {
	run, err := r.store.Get(ctx, id)
	if err != nil {
		return models.CohortRun{}, err
	}
	return recordToDomain(run), nil
}

func (r *Runner) List(ctx context.Context, limit int) ([]models.CohortRun, error) {
	runs, err := r.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := make([]models.CohortRun, 0, len(runs))
	for i := range runs {
		result = append(result, recordToDomain(&runs[i]))
	}
	return result, nil
}

// Wait blocks until every enqueued run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(id uuid.UUID, req models.CohortBuildRequest) {
	defer r.wg.Done()
	r.workers <- struct{}{}
	defer func() { <-r.workers }()

	ctx := context.Background()
	log := logger.WithField("run_id", id.String())
	started := time.Now().UTC()
	_ = r.store.Update(ctx, id, map[string]interface{}{
		"status":     RunStatusRunning,
		"started_at": started,
	})

	result, err := r.job(ctx, id.String(), req)
	completed := time.Now().UTC()
	warnings, _ := json.Marshal(nonNil(result.Warnings))
	if err != nil {
		log.WithError(err).Error("cohort run failed")
		_ = r.store.Update(ctx, id, map[string]interface{}{
			"status":        RunStatusFailed,
			"error_message": err.Error(),
			"warnings":      datatypes.JSON(warnings),
			"completed_at":  completed,
		})
		metrics.ObserveRun(true, result.Degraded)
		r.publish(ctx, EventCohortFailed, id, map[string]interface{}{
			"run_id": id.String(),
			"error":  err.Error(),
		})
		return
	}

	_ = r.store.Update(ctx, id, map[string]interface{}{
		"status":        RunStatusCompleted,
		"exposed_count": result.ExposedCount,
		"matched_count": result.MatchedCount,
		"warnings":      datatypes.JSON(warnings),
		"error_message": "",
		"completed_at":  completed,
	})
	metrics.ObserveRun(false, result.Degraded)
	log.WithFields(map[string]interface{}{
		"exposed": result.ExposedCount,
		"matched": result.MatchedCount,
	}).Info("cohort run completed")
	r.publish(ctx, EventCohortCompleted, id, map[string]interface{}{
		"run_id":         id.String(),
		"severe_cases":   result.SevereCases,
		"exposed_count":  result.ExposedCount,
		"unexposed_pool": result.UnexposedPool,
		"matched_count":  result.MatchedCount,
		"outputs":        result.Outputs,
		"warnings":       result.Warnings,
		"degraded":       result.Degraded,
	})
}

func (r *Runner) publish(ctx context.Context, eventType string, id uuid.UUID, data map[string]interface{}) {
	if r.events == nil {
		return
	}
	if _, err := r.events.PublishEvent(ctx, eventType, "cohort-service", id.String(), data); err != nil {
		logger.WithField("run_id", id.String()).WithError(err).Warn("run event not published")
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
