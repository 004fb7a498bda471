package service

import (
	"time"

	"credit-service/internal/biz"

	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewCreditService, NewCreditInternalService)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func toTransactionInfo(tx *biz.Transaction) *TransactionInfo {
	if tx == nil {
		return nil
	}
	return &TransactionInfo{
		ID:           tx.ID,
		AccountID:    tx.AccountID,
		Type:         string(tx.Type),
		Amount:       tx.Amount,
		BalanceAfter: tx.BalanceAfter,
		ServiceID:    string(tx.ServiceID),
		Complexity:   string(tx.Complexity),
		Units:        int32(tx.Units),
		WorkflowID:   tx.WorkflowID,
		StageID:      tx.StageID,
		Description:  tx.Description,
		RelatedID:    tx.RelatedID,
		CreatedAt:    formatTime(tx.CreatedAt),
	}
}

func toPurchaseOrderInfo(o *biz.PurchaseOrder) *PurchaseOrderInfo {
	return &PurchaseOrderInfo{
		ID:            o.ID,
		AccountID:     o.AccountID,
		PackageID:     o.PackageID,
		Price:         o.Price.StringFixed(2),
		Currency:      o.Currency,
		Status:        o.Status,
		PaymentID:     o.PaymentID,
		TransactionID: o.TransactionID,
		CreatedAt:     formatTime(o.CreatedAt),
		UpdatedAt:     formatTime(o.UpdatedAt),
	}
}

func toGrantReply(r *biz.GrantResult) *GrantReply {
	return &GrantReply{
		Granted:     r.Granted,
		OrderID:     r.OrderID,
		Balance:     r.Balance,
		Transaction: toTransactionInfo(r.Transaction),
	}
}

func toSubscriptionReply(accountID string, sub *biz.AccountSubscription) *SubscriptionReply {
	if sub == nil {
		return &SubscriptionReply{AccountID: accountID}
	}
	return &SubscriptionReply{
		AccountID: sub.AccountID,
		TierID:    sub.TierID,
		Status:    sub.Status,
		CreatedAt: formatTime(sub.CreatedAt),
		UpdatedAt: formatTime(sub.UpdatedAt),
	}
}

func toStageInfo(s *biz.Stage) *StageInfo {
	return &StageInfo{
		ID:          s.ID,
		Order:       int32(s.Order),
		State:       string(s.State),
		Budget:      s.Budget,
		Spent:       s.Spent,
		OverBudget:  s.OverBudget(),
		StartedAt:   formatTimePtr(s.StartedAt),
		CompletedAt: formatTimePtr(s.CompletedAt),
	}
}

func toWorkflowReply(p *biz.WorkflowProgress) *WorkflowReply {
	reply := &WorkflowReply{
		AccountID:      p.AccountID,
		WorkflowID:     p.WorkflowID,
		CurrentStageID: p.CurrentStageID,
		Stages:         make([]*StageInfo, 0, len(p.Stages)),
	}
	for _, s := range p.Stages {
		reply.Stages = append(reply.Stages, toStageInfo(s))
	}
	return reply
}

func toVersionInfo(v *biz.ArtifactVersion) *VersionInfo {
	if v == nil {
		return nil
	}
	info := &VersionInfo{
		ID:            v.ID,
		RootID:        v.RootID,
		ParentID:      v.ParentID,
		AccountID:     v.AccountID,
		CostTier:      string(v.CostTier),
		Revision:      int32(v.Revision),
		Payload:       v.Payload,
		TransactionID: v.TransactionID,
		Description:   v.Description,
		CreatedAt:     formatTime(v.CreatedAt),
	}
	for _, o := range v.Options {
		info.Options = append(info.Options, string(o))
	}
	return info
}

func toRemixReply(r *biz.RemixResult) *RemixReply {
	return &RemixReply{
		OK:      r.OK,
		Reason:  r.Reason,
		Cost:    r.Cost,
		Balance: r.Balance,
		Version: toVersionInfo(r.Version),
	}
}
