package persistence

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/canvasflow/types"
)

// Migrate creates or updates the persistence schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&AgentDefinition{}, &ExecutionRecord{})
}

// AgentRepository persists agent definitions.
type AgentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAgentRepository creates a repository.
func NewAgentRepository(db *gorm.DB, logger *zap.Logger) *AgentRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentRepository{db: db, logger: logger.With(zap.String("component", "agent_repo"))}
}

func (r *AgentRepository) Create(ctx context.Context, def *AgentDefinition) error {
	return r.db.WithContext(ctx).Create(def).Error
}

func (r *AgentRepository) GetByID(ctx context.Context, id string) (*AgentDefinition, error) {
	var def AgentDefinition
	err := r.db.WithContext(ctx).First(&def, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrAgentNotFound, "agent definition not found: "+id)
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *AgentRepository) ListSystem(ctx context.Context) ([]AgentDefinition, error) {
	var defs []AgentDefinition
	err := r.db.WithContext(ctx).Where("is_system = ?", true).Order("name").Find(&defs).Error
	return defs, err
}

func (r *AgentRepository) ListByOwner(ctx context.Context, userID string) ([]AgentDefinition, error) {
	var defs []AgentDefinition
	err := r.db.WithContext(ctx).Where("created_by = ?", userID).Order("created_at desc").Find(&defs).Error
	return defs, err
}

func (r *AgentRepository) Update(ctx context.Context, def *AgentDefinition) error {
	return r.db.WithContext(ctx).Save(def).Error
}

func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&AgentDefinition{}, "id = ?", id).Error
}

// ExecutionRepository persists execution records.
type ExecutionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewExecutionRepository creates a repository.
func NewExecutionRepository(db *gorm.DB, logger *zap.Logger) *ExecutionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionRepository{db: db, logger: logger.With(zap.String("component", "execution_repo"))}
}

func (r *ExecutionRepository) Create(ctx context.Context, rec *ExecutionRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*ExecutionRecord, error) {
	var rec ExecutionRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrExecutionNotFound, "execution not found: "+id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ExecutionRepository) ListByAgent(ctx context.Context, agentID string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []ExecutionRecord
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// Complete finalizes a record with its output, once.
func (r *ExecutionRepository) Complete(ctx context.Context, id, output, errText string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&ExecutionRecord{}).
		Where("id = ? AND completed_at IS NULL", id).
		Updates(map[string]any{
			"output":       output,
			"errors":       errText,
			"completed_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrExecutionNotFound, "execution not found or already completed: "+id)
	}
	return nil
}
