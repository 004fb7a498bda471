package data

import (
	"context"
	"errors"

	"credit-service/internal/biz"
	"credit-service/internal/data/model"
	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// stageRepo 工作流阶段进度数据访问
type stageRepo struct {
	data *Data
	log  *log.Helper
}

// NewStageRepo 创建阶段进度 repo（返回 biz.StageRepo 接口）
func NewStageRepo(data *Data, logger log.Logger) biz.StageRepo {
	if data.mem != nil {
		return data.mem
	}
	return &stageRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetProgress 读取工作流及其阶段
func (r *stageRepo) GetProgress(ctx context.Context, accountID, workflowID string) (*biz.WorkflowProgress, error) {
	var wf model.WorkflowProgress
	if err := r.data.db.WithContext(ctx).
		Where("account_id = ? AND workflow_id = ?", accountID, workflowID).
		First(&wf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var stages []model.WorkflowStage
	if err := r.data.db.WithContext(ctx).
		Where("account_id = ? AND workflow_id = ?", accountID, workflowID).
		Order("stage_order ASC").
		Find(&stages).Error; err != nil {
		return nil, err
	}

	progress := &biz.WorkflowProgress{
		AccountID:      wf.AccountID,
		WorkflowID:     wf.WorkflowID,
		CurrentStageID: wf.CurrentStageID,
		Stages:         make([]*biz.Stage, 0, len(stages)),
		CreatedAt:      wf.CreatedAt,
		UpdatedAt:      wf.UpdatedAt,
	}
	for i := range stages {
		progress.Stages = append(progress.Stages, toStage(&stages[i]))
	}
	return progress, nil
}

// SaveProgress 整体写入工作流与阶段状态（spent 只由 AddStageSpend 修改）
func (r *stageRepo) SaveProgress(ctx context.Context, progress *biz.WorkflowProgress) error {
	return r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wf := model.WorkflowProgress{
			AccountID:      progress.AccountID,
			WorkflowID:     progress.WorkflowID,
			CurrentStageID: progress.CurrentStageID,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "workflow_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_stage_id", "updated_at"}),
		}).Create(&wf).Error; err != nil {
			return err
		}

		for _, s := range progress.Stages {
			m := model.WorkflowStage{
				AccountID:   progress.AccountID,
				WorkflowID:  progress.WorkflowID,
				StageID:     s.ID,
				StageOrder:  s.Order,
				State:       string(s.State),
				Budget:      s.Budget,
				Spent:       s.Spent,
				StartedAt:   s.StartedAt,
				CompletedAt: s.CompletedAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_id"}, {Name: "workflow_id"}, {Name: "stage_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"state", "started_at", "completed_at", "updated_at"}),
			}).Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AddStageSpend 原子累加阶段已用积分
func (r *stageRepo) AddStageSpend(ctx context.Context, accountID, workflowID, stageID string, amount int64) (*biz.Stage, error) {
	var stage model.WorkflowStage
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.WorkflowStage{}).
			Where("account_id = ? AND workflow_id = ? AND stage_id = ?", accountID, workflowID, stageID).
			Update("spent", gorm.Expr("spent + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return creditErrors.ErrUnknownStage
		}
		return tx.Where("account_id = ? AND workflow_id = ? AND stage_id = ?", accountID, workflowID, stageID).
			First(&stage).Error
	})
	if err != nil {
		return nil, err
	}
	return toStage(&stage), nil
}

func toStage(m *model.WorkflowStage) *biz.Stage {
	return &biz.Stage{
		AccountID:   m.AccountID,
		WorkflowID:  m.WorkflowID,
		ID:          m.StageID,
		Order:       m.StageOrder,
		State:       biz.StageState(m.State),
		Budget:      m.Budget,
		Spent:       m.Spent,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}
