package service

import "encoding/json"

// 账户与流水

type GetBalanceRequest struct {
	AccountID string `json:"account_id"`
}

type GetBalanceReply struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

type ListTransactionsRequest struct {
	AccountID string `json:"account_id"`
	Limit     int32  `json:"limit"`
	Offset    int32  `json:"offset"`
}

type ListTransactionsReply struct {
	Transactions []*TransactionInfo `json:"transactions"`
}

type TransactionInfo struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Type         string `json:"type"`
	Amount       int64  `json:"amount"`
	BalanceAfter int64  `json:"balance_after"`
	ServiceID    string `json:"service_id,omitempty"`
	Complexity   string `json:"complexity,omitempty"`
	Units        int32  `json:"units,omitempty"`
	WorkflowID   string `json:"workflow_id,omitempty"`
	StageID      string `json:"stage_id,omitempty"`
	Description  string `json:"description,omitempty"`
	RelatedID    string `json:"related_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type AuditAccountRequest struct {
	AccountID string `json:"account_id"`
}

type AuditAccountReply struct {
	AccountID  string `json:"account_id"`
	Balance    int64  `json:"balance"`
	Sum        int64  `json:"sum"`
	Consistent bool   `json:"consistent"`
}

type GetUsageRequest struct {
	AccountID string `json:"account_id"`
	Period    string `json:"period"` // today / month
}

type GetUsageReply struct {
	AccountID    string              `json:"account_id"`
	Period       string              `json:"period"`
	From         string              `json:"from"`
	To           string              `json:"to"`
	TotalCount   int32               `json:"total_count"`
	TotalCredits int64               `json:"total_credits"`
	Services     []*ServiceUsageInfo `json:"services"`
}

type ServiceUsageInfo struct {
	ServiceID string `json:"service_id"`
	Count     int32  `json:"count"`
	Credits   int64  `json:"credits"`
	Refunded  int64  `json:"refunded"`
}

// 定价

type QuoteRequest struct {
	ServiceID  string `json:"service_id"`
	Complexity string `json:"complexity"`
	Units      int32  `json:"units"`
}

type QuoteReply struct {
	ServiceID  string `json:"service_id"`
	Complexity string `json:"complexity"`
	Units      int32  `json:"units"`
	Cost       int64  `json:"cost"`
}

type ListPricingRulesRequest struct{}

type ListPricingRulesReply struct {
	Rules       []*PricingRuleInfo `json:"rules"`
	Multipliers map[string]string  `json:"multipliers"`
}

type PricingRuleInfo struct {
	ServiceID string `json:"service_id"`
	BaseCost  int64  `json:"base_cost"`
}

// 扣费与退款

type ConsumeRequest struct {
	AccountID      string `json:"account_id"`
	ServiceID      string `json:"service_id"`
	Complexity     string `json:"complexity"`
	Units          int32  `json:"units"`
	Description    string `json:"description"`
	WorkflowID     string `json:"workflow_id"`
	StageID        string `json:"stage_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type ConsumeReply struct {
	OK            bool               `json:"ok"`
	Reason        string             `json:"reason,omitempty"`
	Cost          int64              `json:"cost"`
	Balance       int64              `json:"balance"`
	Replayed      bool               `json:"replayed,omitempty"`
	Transaction   *TransactionInfo   `json:"transaction,omitempty"`
	BudgetWarning *BudgetWarningInfo `json:"budget_warning,omitempty"`
}

type BudgetWarningInfo struct {
	StageID string `json:"stage_id"`
	Budget  int64  `json:"budget"`
	Spent   int64  `json:"spent"`
}

type RefundRequest struct {
	AccountID     string `json:"account_id"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

type RefundReply struct {
	Transaction *TransactionInfo `json:"transaction"`
	Balance     int64            `json:"balance"`
}

// 积分包与订阅

type ListPackagesRequest struct{}

type ListPackagesReply struct {
	Packages []*PackageInfo `json:"packages"`
}

type PackageInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	Currency     string `json:"currency"`
	BaseCredits  int64  `json:"base_credits"`
	BonusCredits int64  `json:"bonus_credits"`
	TotalCredits int64  `json:"total_credits"`
}

type CreatePurchaseRequest struct {
	AccountID string `json:"account_id"`
	PackageID string `json:"package_id"`
	ReturnURL string `json:"return_url"`
}

type GetPurchaseRequest struct {
	OrderID string `json:"order_id"`
}

type CancelPurchaseRequest struct {
	OrderID string `json:"order_id"`
}

type PurchaseReply struct {
	Order  *PurchaseOrderInfo `json:"order"`
	PayURL string             `json:"pay_url,omitempty"`
}

type PurchaseOrderInfo struct {
	ID            string `json:"id"`
	AccountID     string `json:"account_id"`
	PackageID     string `json:"package_id"`
	Price         string `json:"price"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaymentID     string `json:"payment_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type PaymentCallbackRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
}

type GrantReply struct {
	Granted     bool             `json:"granted"`
	OrderID     string           `json:"order_id,omitempty"`
	Balance     int64            `json:"balance"`
	Transaction *TransactionInfo `json:"transaction,omitempty"`
}

type SubscribeRequest struct {
	AccountID string `json:"account_id"`
	TierID    string `json:"tier_id"`
}

type GetSubscriptionRequest struct {
	AccountID string `json:"account_id"`
}

type UnsubscribeRequest struct {
	AccountID string `json:"account_id"`
}

type SubscriptionReply struct {
	AccountID string `json:"account_id"`
	TierID    string `json:"tier_id,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type GrantSubscriptionRequest struct {
	AccountID string `json:"account_id"`
	Period    string `json:"period"` // YYYY-MM，为空时取当前月
}

type GrantBonusRequest struct {
	AccountID      string `json:"account_id"`
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// 工作流阶段

type WorkflowRequest struct {
	AccountID  string `json:"account_id"`
	WorkflowID string `json:"workflow_id"`
}

type WorkflowReply struct {
	AccountID      string       `json:"account_id"`
	WorkflowID     string       `json:"workflow_id"`
	CurrentStageID string       `json:"current_stage_id"`
	Stages         []*StageInfo `json:"stages"`
}

type StageInfo struct {
	ID          string `json:"id"`
	Order       int32  `json:"order"`
	State       string `json:"state"`
	Budget      int64  `json:"budget"`
	Spent       int64  `json:"spent"`
	OverBudget  bool   `json:"over_budget,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type StageRequest struct {
	AccountID  string `json:"account_id"`
	WorkflowID string `json:"workflow_id"`
	StageID    string `json:"stage_id"`
}

type CanAccessStageReply struct {
	StageID    string `json:"stage_id"`
	Accessible bool   `json:"accessible"`
}

type StageReply struct {
	Stage *StageInfo `json:"stage"`
}

type StageCreditsReply struct {
	StageID string `json:"stage_id"`
	Spent   int64  `json:"spent"`
}

// 版本与 Remix

type CreateRootVersionRequest struct {
	AccountID   string          `json:"account_id"`
	Payload     json.RawMessage `json:"payload"`
	Description string          `json:"description"`
}

type RemixRequest struct {
	AccountID   string                     `json:"account_id"`
	VersionID   string                     `json:"version_id"` // 父版本
	CostTier    string                     `json:"cost_tier"`
	Options     map[string]bool            `json:"options"`
	Parameters  map[string]json.RawMessage `json:"parameters"`
	Description string                     `json:"description"`
}

type RemixReply struct {
	OK      bool         `json:"ok"`
	Reason  string       `json:"reason,omitempty"`
	Cost    int64        `json:"cost"`
	Balance int64        `json:"balance"`
	Version *VersionInfo `json:"version,omitempty"`
}

type VersionRequest struct {
	AccountID string `json:"account_id"`
	VersionID string `json:"version_id"`
}

type VersionReply struct {
	Version *VersionInfo `json:"version"`
}

type ListVersionsReply struct {
	Versions []*VersionInfo `json:"versions"`
}

type SuggestionsReply struct {
	VersionID string   `json:"version_id"`
	Options   []string `json:"options"`
}

type VersionInfo struct {
	ID            string          `json:"id"`
	RootID        string          `json:"root_id"`
	ParentID      string          `json:"parent_id,omitempty"`
	AccountID     string          `json:"account_id"`
	CostTier      string          `json:"cost_tier,omitempty"`
	Revision      int32           `json:"revision"`
	Options       []string        `json:"options,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     string          `json:"created_at"`
}
