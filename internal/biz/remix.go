package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"credit-service/internal/constants"
	creditErrors "credit-service/internal/errors"
	"credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// CostTier Remix 计费档位
type CostTier string

const (
	CostTierBasic    CostTier = "basic"
	CostTierAdvanced CostTier = "advanced"
	CostTierPremium  CostTier = "premium"
)

// Service 档位对应的计费服务
func (t CostTier) Service() (ServiceID, error) {
	switch t {
	case CostTierBasic:
		return ServiceRemixBasic, nil
	case CostTierAdvanced:
		return ServiceRemixAdvanced, nil
	case CostTierPremium:
		return ServiceRemixPremium, nil
	}
	return "", creditErrors.ErrUnknownService.WithCause(fmt.Errorf("remix cost tier %q", t))
}

// OptionFlag Remix 调整项
type OptionFlag string

const (
	OptionAdjustBudget        OptionFlag = "adjustBudget"
	OptionChangeDates         OptionFlag = "changeDates"
	OptionAddActivities       OptionFlag = "addActivities"
	OptionChangeAccommodation OptionFlag = "changeAccommodation"
	OptionChangePace          OptionFlag = "changePace"
)

// optionOrder 建议项的输出顺序
var optionOrder = []OptionFlag{
	OptionAdjustBudget,
	OptionChangeDates,
	OptionAddActivities,
	OptionChangeAccommodation,
	OptionChangePace,
}

func knownOption(f OptionFlag) bool {
	for _, o := range optionOrder {
		if o == f {
			return true
		}
	}
	return false
}

// 建议规则阈值
const (
	lowBudgetRatio      = 0.2
	minActivitiesPerDay = 2
	maxActivitiesPerDay = 5
)

// ArtifactVersion 生成内容的不可变版本，按 ParentID 构成一棵树
type ArtifactVersion struct {
	ID            string
	RootID        string
	ParentID      string // 根版本为空
	AccountID     string
	CostTier      CostTier
	Revision      int
	Options       []OptionFlag
	Payload       json.RawMessage
	TransactionID string
	Description   string
	CreatedAt     time.Time
}

// VersionRepo 版本数据层接口（定义在 biz 层），只追加
type VersionRepo interface {
	CreateVersion(ctx context.Context, v *ArtifactVersion) error
	// GetVersion 不存在时返回 ErrVersionNotFound
	GetVersion(ctx context.Context, versionID string) (*ArtifactVersion, error)
	// ListVersions 按创建时间升序
	ListVersions(ctx context.Context, rootID string) ([]*ArtifactVersion, error)
}

// RemixRequest Remix 请求
type RemixRequest struct {
	AccountID   string
	ParentID    string
	CostTier    CostTier
	Options     map[OptionFlag]bool
	Parameters  map[string]json.RawMessage // 覆盖父版本内容的顶层字段
	Description string
}

// RemixResult Remix 结果，OK 为 false 时没有创建任何版本
type RemixResult struct {
	OK      bool
	Reason  string
	Cost    int64
	Balance int64
	Version *ArtifactVersion
}

// RemixVersionManager 付费生成新版本
type RemixVersionManager struct {
	repo    VersionRepo
	gateway *ConsumptionGateway
	log     *log.Helper
	metrics *metrics.CreditMetrics
}

// NewRemixVersionManager 创建版本管理器
func NewRemixVersionManager(repo VersionRepo, gateway *ConsumptionGateway, logger log.Logger) *RemixVersionManager {
	return &RemixVersionManager{
		repo:    repo,
		gateway: gateway,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// CreateRootVersion 首次生成：按 itinerary_generation 计费并记录根版本
func (m *RemixVersionManager) CreateRootVersion(ctx context.Context, accountID string, payload json.RawMessage, description string) (*RemixResult, error) {
	if _, err := decodeObject(payload); err != nil {
		return nil, err
	}
	res, err := m.gateway.Consume(ctx, &ConsumeRequest{
		AccountID:   accountID,
		ServiceID:   ServiceItineraryGeneration,
		Complexity:  ComplexityStandard,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return &RemixResult{OK: false, Reason: res.Reason, Cost: res.Cost, Balance: res.Balance}, nil
	}

	id := uuid.New().String()
	v := &ArtifactVersion{
		ID:            id,
		RootID:        id,
		AccountID:     accountID,
		Revision:      1,
		Payload:       append(json.RawMessage(nil), payload...),
		TransactionID: res.Transaction.ID,
		Description:   description,
		CreatedAt:     time.Now(),
	}
	if err := m.save(ctx, v, res.Transaction); err != nil {
		return nil, err
	}
	return &RemixResult{OK: true, Cost: res.Cost, Balance: res.Balance, Version: v}, nil
}

// CreateVersion 基于父版本付费生成新版本。父版本不会被修改；扣费失败不创建版本。
func (m *RemixVersionManager) CreateVersion(ctx context.Context, req *RemixRequest) (*RemixResult, error) {
	service, err := req.CostTier.Service()
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(req.Description) > constants.MaxDescriptionLength {
		return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("description longer than %d characters", constants.MaxDescriptionLength))
	}
	parent, err := m.GetVersion(ctx, req.AccountID, req.ParentID)
	if err != nil {
		return nil, err
	}
	flags, err := enabledOptions(req.Options)
	if err != nil {
		return nil, err
	}
	payload, err := remixPayload(parent, req, flags)
	if err != nil {
		return nil, err
	}

	res, err := m.gateway.Consume(ctx, &ConsumeRequest{
		AccountID:   req.AccountID,
		ServiceID:   service,
		Complexity:  ComplexityStandard,
		Description: fmt.Sprintf("remix of %s", parent.ID),
	})
	if err != nil {
		m.count(req.CostTier, "error")
		return nil, err
	}
	if !res.OK {
		m.count(req.CostTier, "denied")
		return &RemixResult{OK: false, Reason: res.Reason, Cost: res.Cost, Balance: res.Balance}, nil
	}

	v := &ArtifactVersion{
		ID:            uuid.New().String(),
		RootID:        parent.RootID,
		ParentID:      parent.ID,
		AccountID:     req.AccountID,
		CostTier:      req.CostTier,
		Revision:      parent.Revision + 1,
		Options:       flags,
		Payload:       payload,
		TransactionID: res.Transaction.ID,
		Description:   req.Description,
		CreatedAt:     time.Now(),
	}
	if err := m.save(ctx, v, res.Transaction); err != nil {
		m.count(req.CostTier, "error")
		return nil, err
	}
	m.count(req.CostTier, "created")
	m.log.Infof("version created: version_id=%s, parent_id=%s, tier=%s, cost=%d", v.ID, parent.ID, req.CostTier, res.Cost)
	return &RemixResult{OK: true, Cost: res.Cost, Balance: res.Balance, Version: v}, nil
}

// GetVersion 查询账户下的版本
func (m *RemixVersionManager) GetVersion(ctx context.Context, accountID, versionID string) (*ArtifactVersion, error) {
	v, err := m.repo.GetVersion(ctx, versionID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	if v.AccountID != accountID {
		return nil, creditErrors.ErrVersionNotFound.WithCause(fmt.Errorf("version %q", versionID))
	}
	return v, nil
}

// ListVersions 列出版本树中的所有版本
func (m *RemixVersionManager) ListVersions(ctx context.Context, accountID, rootID string) ([]*ArtifactVersion, error) {
	if _, err := m.GetVersion(ctx, accountID, rootID); err != nil {
		return nil, err
	}
	versions, err := m.repo.ListVersions(ctx, rootID)
	if err != nil {
		return nil, creditErrors.Persistence(err)
	}
	return versions, nil
}

// GetSuggestedOptions 根据版本内容给出调整建议，纯函数
func (m *RemixVersionManager) GetSuggestedOptions(v *ArtifactVersion) []OptionFlag {
	return SuggestOptions(v.Payload)
}

// SuggestOptions 行程内容启发式规则
func SuggestOptions(payload []byte) []OptionFlag {
	doc := gjson.ParseBytes(payload)
	set := make(map[OptionFlag]bool)

	if total := doc.Get("budget.total"); total.Exists() && total.Float() > 0 {
		remaining := doc.Get("budget.remaining")
		left := remaining.Float()
		if !remaining.Exists() {
			left = total.Float() - doc.Get("budget.spent").Float()
		}
		if left/total.Float() < lowBudgetRatio {
			set[OptionAdjustBudget] = true
		}
	}
	if !doc.Get("dates.start").Exists() || !doc.Get("dates.end").Exists() {
		set[OptionChangeDates] = true
	}
	if !doc.Get("accommodation").Exists() {
		set[OptionChangeAccommodation] = true
	}
	days := doc.Get("days")
	if !days.IsArray() || len(days.Array()) == 0 {
		set[OptionAddActivities] = true
	} else {
		days.ForEach(func(_, day gjson.Result) bool {
			n := day.Get("activities.#").Int()
			if n < minActivitiesPerDay {
				set[OptionAddActivities] = true
			}
			if n > maxActivitiesPerDay {
				set[OptionChangePace] = true
			}
			return true
		})
	}

	out := make([]OptionFlag, 0, len(set))
	for _, o := range optionOrder {
		if set[o] {
			out = append(out, o)
		}
	}
	return out
}

// save 写入版本，失败时退还本次扣费
func (m *RemixVersionManager) save(ctx context.Context, v *ArtifactVersion, charge *Transaction) error {
	err := m.repo.CreateVersion(ctx, v)
	if err == nil {
		return nil
	}
	m.log.Errorf("CreateVersion failed, refunding: transaction_id=%s, error=%v", charge.ID, err)
	if _, rerr := m.gateway.Refund(ctx, charge.AccountID, charge.ID, "version not saved"); rerr != nil {
		m.log.Errorf("refund after failed version save failed: transaction_id=%s, error=%v", charge.ID, rerr)
	}
	return creditErrors.Persistence(err)
}

func (m *RemixVersionManager) count(tier CostTier, result string) {
	if m.metrics != nil {
		m.metrics.RemixTotal.WithLabelValues(string(tier), result).Inc()
	}
}

func enabledOptions(options map[OptionFlag]bool) ([]OptionFlag, error) {
	flags := make([]OptionFlag, 0, len(options))
	for f, on := range options {
		if !knownOption(f) {
			return nil, creditErrors.ErrInvalidArgument.WithCause(fmt.Errorf("unknown remix option %q", f))
		}
		if on {
			flags = append(flags, f)
		}
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return flags, nil
}

// remixPayload 复制父版本内容，应用参数覆盖并写入 remix 元信息
func remixPayload(parent *ArtifactVersion, req *RemixRequest, flags []OptionFlag) (json.RawMessage, error) {
	doc, err := decodeObject(parent.Payload)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Parameters {
		if k == "remix" {
			continue
		}
		if !json.Valid(v) {
			return nil, creditErrors.ErrInvalidPayload.WithCause(fmt.Errorf("parameter %q is not valid JSON", k))
		}
		doc[k] = append(json.RawMessage(nil), v...)
	}
	meta, err := json.Marshal(map[string]interface{}{
		"parentId": parent.ID,
		"costTier": req.CostTier,
		"options":  flags,
		"revision": parent.Revision + 1,
	})
	if err != nil {
		return nil, err
	}
	doc["remix"] = meta
	return json.Marshal(doc)
}

func decodeObject(payload []byte) (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	if len(payload) == 0 || !gjson.ValidBytes(payload) || !gjson.ParseBytes(payload).IsObject() {
		return nil, creditErrors.ErrInvalidPayload
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, creditErrors.ErrInvalidPayload.WithCause(err)
	}
	return doc, nil
}
