package biz

import (
	"context"
	"fmt"
	"time"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// StageState 阶段状态
type StageState string

const (
	StageLocked     StageState = "locked"
	StageAvailable  StageState = "available"
	StageInProgress StageState = "in_progress"
	StageCompleted  StageState = "completed"
)

// Accessible 可进入的状态
func (s StageState) Accessible() bool {
	return s == StageAvailable || s == StageInProgress || s == StageCompleted
}

// StageDefinition 阶段定义（来自配置）
type StageDefinition struct {
	ID     string
	Order  int
	Budget int64
}

// Stage 某账户某工作流下的阶段进度
type Stage struct {
	AccountID   string
	WorkflowID  string
	ID          string
	Order       int
	State       StageState
	Budget      int64
	Spent       int64
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// OverBudget 是否超出预算
func (s *Stage) OverBudget() bool {
	return s.Spent > s.Budget
}

// WorkflowProgress 工作流进度
type WorkflowProgress struct {
	AccountID      string
	WorkflowID     string
	CurrentStageID string
	Stages         []*Stage // 按 Order 升序
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Stage 按ID查找阶段及其下标
func (p *WorkflowProgress) Stage(stageID string) (*Stage, int) {
	for i, s := range p.Stages {
		if s.ID == stageID {
			return s, i
		}
	}
	return nil, -1
}

// BudgetWarning 预算超支提醒（仅提示，不阻断）
type BudgetWarning struct {
	StageID string
	Budget  int64
	Spent   int64
}

// StageRepo 阶段进度数据层接口（定义在 biz 层）
type StageRepo interface {
	// GetProgress 不存在时返回 (nil, nil)
	GetProgress(ctx context.Context, accountID, workflowID string) (*WorkflowProgress, error)
	// SaveProgress 整体写入工作流与阶段状态
	SaveProgress(ctx context.Context, progress *WorkflowProgress) error
	// AddStageSpend 原子累加阶段已用积分，返回更新后的阶段
	AddStageSpend(ctx context.Context, accountID, workflowID, stageID string, amount int64) (*Stage, error)
}

// StageProgressTracker 多阶段工作流进度：前一阶段完成后才解锁下一阶段
type StageProgressTracker struct {
	repo    StageRepo
	locker  Locker
	conf    *BillingConfig
	log     *log.Helper
	metrics *metrics.CreditMetrics
}

// NewStageProgressTracker 创建阶段进度跟踪器
func NewStageProgressTracker(repo StageRepo, locker Locker, conf *BillingConfig, logger log.Logger) *StageProgressTracker {
	return &StageProgressTracker{
		repo:    repo,
		locker:  locker,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// StartWorkflow 初始化工作流（幂等）：第一阶段 available，其余 locked
func (t *StageProgressTracker) StartWorkflow(ctx context.Context, accountID, workflowID string) (*WorkflowProgress, error) {
	if accountID == "" || workflowID == "" {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("account id and workflow id are required"))
	}
	unlock, err := t.lock(ctx, accountID, workflowID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return t.loadOrInit(ctx, accountID, workflowID)
}

// Stages 查询工作流进度，未初始化时自动初始化
func (t *StageProgressTracker) Stages(ctx context.Context, accountID, workflowID string) (*WorkflowProgress, error) {
	progress, err := t.repo.GetProgress(ctx, accountID, workflowID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	if progress != nil {
		return progress, nil
	}
	return t.StartWorkflow(ctx, accountID, workflowID)
}

// CanAccessStage 阶段是否可进入
func (t *StageProgressTracker) CanAccessStage(ctx context.Context, accountID, workflowID, stageID string) (bool, error) {
	progress, err := t.Stages(ctx, accountID, workflowID)
	if err != nil {
		return false, err
	}
	stage, _ := progress.Stage(stageID)
	if stage == nil {
		return false, creditErrors.ErrUnknownStage.WithCause(fmt.Errorf("stage %q", stageID))
	}
	return stage.State.Accessible(), nil
}

// SetCurrentStage 切换当前阶段，locked 阶段返回 ErrStageLocked
func (t *StageProgressTracker) SetCurrentStage(ctx context.Context, accountID, workflowID, stageID string) (*Stage, error) {
	unlock, err := t.lock(ctx, accountID, workflowID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	progress, err := t.loadOrInit(ctx, accountID, workflowID)
	if err != nil {
		return nil, err
	}
	stage, _ := progress.Stage(stageID)
	if stage == nil {
		return nil, creditErrors.ErrUnknownStage.WithCause(fmt.Errorf("stage %q", stageID))
	}
	if !stage.State.Accessible() {
		return nil, creditErrors.ErrStageLocked.WithCause(fmt.Errorf("stage %q", stageID))
	}

	now := time.Now()
	if stage.State == StageAvailable {
		stage.State = StageInProgress
		stage.StartedAt = &now
		t.countTransition(StageInProgress)
	}
	progress.CurrentStageID = stageID
	progress.UpdatedAt = now
	if err := t.repo.SaveProgress(ctx, progress); err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return stage, nil
}

// CompleteStage 完成阶段并解锁下一阶段；重复完成为空操作
func (t *StageProgressTracker) CompleteStage(ctx context.Context, accountID, workflowID, stageID string) (*WorkflowProgress, error) {
	unlock, err := t.lock(ctx, accountID, workflowID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	progress, err := t.loadOrInit(ctx, accountID, workflowID)
	if err != nil {
		return nil, err
	}
	stage, idx := progress.Stage(stageID)
	if stage == nil {
		return nil, creditErrors.ErrUnknownStage.WithCause(fmt.Errorf("stage %q", stageID))
	}
	switch stage.State {
	case StageLocked:
		return nil, creditErrors.ErrStageLocked.WithCause(fmt.Errorf("stage %q", stageID))
	case StageCompleted:
		return progress, nil
	}

	now := time.Now()
	if stage.StartedAt == nil {
		stage.StartedAt = &now
	}
	stage.State = StageCompleted
	stage.CompletedAt = &now
	t.countTransition(StageCompleted)

	if idx+1 < len(progress.Stages) {
		next := progress.Stages[idx+1]
		if next.State == StageLocked {
			next.State = StageAvailable
			t.countTransition(StageAvailable)
		}
	}
	progress.UpdatedAt = now
	if err := t.repo.SaveProgress(ctx, progress); err != nil {
		return nil, creditErrors.Persistence(err)
	}
	t.log.Infof("stage completed: account_id=%s, workflow_id=%s, stage_id=%s, spent=%d/%d", accountID, workflowID, stageID, stage.Spent, stage.Budget)
	return progress, nil
}

// RecordSpend 累加阶段已用积分。超出预算只返回提醒，不阻断。
func (t *StageProgressTracker) RecordSpend(ctx context.Context, accountID, workflowID, stageID string, amount int64) (*Stage, *BudgetWarning, error) {
	if amount <= 0 {
		return nil, nil, creditErrors.ErrInvalidAmount.WithCause(fmt.Errorf("spend amount %d", amount))
	}
	if _, err := t.Stages(ctx, accountID, workflowID); err != nil {
		return nil, nil, err
	}
	stage, err := t.repo.AddStageSpend(ctx, accountID, workflowID, stageID, amount)
	if err != nil {
		return nil, nil, creditErrors.Persistence(err)
	}
	if !stage.OverBudget() {
		return stage, nil, nil
	}
	t.log.Warnf("stage over budget: account_id=%s, workflow_id=%s, stage_id=%s, spent=%d, budget=%d", accountID, workflowID, stageID, stage.Spent, stage.Budget)
	if t.metrics != nil {
		t.metrics.StageBudgetExceeded.WithLabelValues(stageID).Inc()
	}
	return stage, &BudgetWarning{StageID: stageID, Budget: stage.Budget, Spent: stage.Spent}, nil
}

// GetStageCreditsUsed 阶段已用积分
func (t *StageProgressTracker) GetStageCreditsUsed(ctx context.Context, accountID, workflowID, stageID string) (int64, error) {
	progress, err := t.Stages(ctx, accountID, workflowID)
	if err != nil {
		return 0, err
	}
	stage, _ := progress.Stage(stageID)
	if stage == nil {
		return 0, creditErrors.ErrUnknownStage.WithCause(fmt.Errorf("stage %q", stageID))
	}
	return stage.Spent, nil
}

func (t *StageProgressTracker) loadOrInit(ctx context.Context, accountID, workflowID string) (*WorkflowProgress, error) {
	progress, err := t.repo.GetProgress(ctx, accountID, workflowID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	if progress != nil {
		return progress, nil
	}

	now := time.Now()
	progress = &WorkflowProgress{
		AccountID:  accountID,
		WorkflowID: workflowID,
		Stages:     make([]*Stage, 0, len(t.conf.Stages)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, def := range t.conf.Stages {
		state := StageLocked
		if i == 0 {
			state = StageAvailable
			progress.CurrentStageID = def.ID
		}
		progress.Stages = append(progress.Stages, &Stage{
			AccountID:  accountID,
			WorkflowID: workflowID,
			ID:         def.ID,
			Order:      def.Order,
			State:      state,
			Budget:     def.Budget,
		})
	}
	if err := t.repo.SaveProgress(ctx, progress); err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return progress, nil
}

func (t *StageProgressTracker) lock(ctx context.Context, accountID, workflowID string) (func(), error) {
	if t.locker == nil {
		return func() {}, nil
	}
	unlock, err := t.locker.Lock(ctx, constants.LockKeyWorkflow+accountID+":"+workflowID)
	if err != nil {
		return nil, creditErrors.ErrLockFailed.WithCause(err)
	}
	return unlock, nil
}

func (t *StageProgressTracker) countTransition(state StageState) {
	if t.metrics != nil {
		t.metrics.StageTransitionTotal.WithLabelValues(string(state)).Inc()
	}
}
