package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationCreditServiceGetBalance        = "/credit.v1.CreditService/GetBalance"
	OperationCreditServiceListTransactions  = "/credit.v1.CreditService/ListTransactions"
	OperationCreditServiceGetUsage          = "/credit.v1.CreditService/GetUsage"
	OperationCreditServiceQuote             = "/credit.v1.CreditService/Quote"
	OperationCreditServiceListPricingRules  = "/credit.v1.CreditService/ListPricingRules"
	OperationCreditServiceListPackages      = "/credit.v1.CreditService/ListPackages"
	OperationCreditServiceCreatePurchase    = "/credit.v1.CreditService/CreatePurchase"
	OperationCreditServiceGetPurchase       = "/credit.v1.CreditService/GetPurchase"
	OperationCreditServiceCancelPurchase    = "/credit.v1.CreditService/CancelPurchase"
	OperationCreditServiceSubscribe         = "/credit.v1.CreditService/Subscribe"
	OperationCreditServiceGetSubscription   = "/credit.v1.CreditService/GetSubscription"
	OperationCreditServiceUnsubscribe       = "/credit.v1.CreditService/Unsubscribe"
	OperationCreditServiceGetWorkflow       = "/credit.v1.CreditService/GetWorkflow"
	OperationCreditServiceCanAccessStage    = "/credit.v1.CreditService/CanAccessStage"
	OperationCreditServiceSetCurrentStage   = "/credit.v1.CreditService/SetCurrentStage"
	OperationCreditServiceCompleteStage     = "/credit.v1.CreditService/CompleteStage"
	OperationCreditServiceGetStageCredits   = "/credit.v1.CreditService/GetStageCredits"
	OperationCreditServiceCreateRootVersion = "/credit.v1.CreditService/CreateRootVersion"
	OperationCreditServiceRemix             = "/credit.v1.CreditService/Remix"
	OperationCreditServiceGetVersion        = "/credit.v1.CreditService/GetVersion"
	OperationCreditServiceListVersions      = "/credit.v1.CreditService/ListVersions"
	OperationCreditServiceGetSuggestions    = "/credit.v1.CreditService/GetSuggestions"

	OperationCreditInternalServiceConsume           = "/credit.v1.CreditInternalService/Consume"
	OperationCreditInternalServiceRefund            = "/credit.v1.CreditInternalService/Refund"
	OperationCreditInternalServiceAuditAccount      = "/credit.v1.CreditInternalService/AuditAccount"
	OperationCreditInternalServicePaymentCallback   = "/credit.v1.CreditInternalService/PaymentCallback"
	OperationCreditInternalServiceGrantSubscription = "/credit.v1.CreditInternalService/GrantSubscription"
	OperationCreditInternalServiceGrantBonus        = "/credit.v1.CreditInternalService/GrantBonus"
)

// RegisterCreditServiceHTTPServer 注册前端接口路由
func RegisterCreditServiceHTTPServer(s *http.Server, srv *CreditService) {
	r := s.Route("/")
	r.GET("/v1/accounts/{account_id}/balance", query(OperationCreditServiceGetBalance, srv.GetBalance))
	r.GET("/v1/accounts/{account_id}/transactions", query(OperationCreditServiceListTransactions, srv.ListTransactions))
	r.GET("/v1/accounts/{account_id}/usage", query(OperationCreditServiceGetUsage, srv.GetUsage))

	r.GET("/v1/pricing/quote", query(OperationCreditServiceQuote, srv.Quote))
	r.GET("/v1/pricing/rules", query(OperationCreditServiceListPricingRules, srv.ListPricingRules))

	r.GET("/v1/packages", query(OperationCreditServiceListPackages, srv.ListPackages))
	r.POST("/v1/accounts/{account_id}/purchases", body(OperationCreditServiceCreatePurchase, srv.CreatePurchase))
	r.GET("/v1/purchases/{order_id}", query(OperationCreditServiceGetPurchase, srv.GetPurchase))
	r.POST("/v1/purchases/{order_id}/cancel", body(OperationCreditServiceCancelPurchase, srv.CancelPurchase))

	r.PUT("/v1/accounts/{account_id}/subscription", body(OperationCreditServiceSubscribe, srv.Subscribe))
	r.GET("/v1/accounts/{account_id}/subscription", query(OperationCreditServiceGetSubscription, srv.GetSubscription))
	r.DELETE("/v1/accounts/{account_id}/subscription", query(OperationCreditServiceUnsubscribe, srv.Unsubscribe))

	r.GET("/v1/accounts/{account_id}/workflows/{workflow_id}/stages", query(OperationCreditServiceGetWorkflow, srv.GetWorkflow))
	r.GET("/v1/accounts/{account_id}/workflows/{workflow_id}/stages/{stage_id}/access", query(OperationCreditServiceCanAccessStage, srv.CanAccessStage))
	r.POST("/v1/accounts/{account_id}/workflows/{workflow_id}/stages/{stage_id}/current", body(OperationCreditServiceSetCurrentStage, srv.SetCurrentStage))
	r.POST("/v1/accounts/{account_id}/workflows/{workflow_id}/stages/{stage_id}/complete", body(OperationCreditServiceCompleteStage, srv.CompleteStage))
	r.GET("/v1/accounts/{account_id}/workflows/{workflow_id}/stages/{stage_id}/credits", query(OperationCreditServiceGetStageCredits, srv.GetStageCredits))

	r.POST("/v1/accounts/{account_id}/versions", body(OperationCreditServiceCreateRootVersion, srv.CreateRootVersion))
	r.POST("/v1/accounts/{account_id}/versions/{version_id}/remix", body(OperationCreditServiceRemix, srv.Remix))
	r.GET("/v1/accounts/{account_id}/versions/{version_id}", query(OperationCreditServiceGetVersion, srv.GetVersion))
	r.GET("/v1/accounts/{account_id}/versions/{version_id}/tree", query(OperationCreditServiceListVersions, srv.ListVersions))
	r.GET("/v1/accounts/{account_id}/versions/{version_id}/suggestions", query(OperationCreditServiceGetSuggestions, srv.GetSuggestions))
}

// RegisterCreditInternalServiceHTTPServer 注册内部接口路由
func RegisterCreditInternalServiceHTTPServer(s *http.Server, srv *CreditInternalService) {
	r := s.Route("/")
	r.POST("/internal/v1/accounts/{account_id}/consume", body(OperationCreditInternalServiceConsume, srv.Consume))
	r.POST("/internal/v1/accounts/{account_id}/refunds", body(OperationCreditInternalServiceRefund, srv.Refund))
	r.GET("/internal/v1/accounts/{account_id}/audit", query(OperationCreditInternalServiceAuditAccount, srv.AuditAccount))
	r.POST("/internal/v1/accounts/{account_id}/subscription/grants", body(OperationCreditInternalServiceGrantSubscription, srv.GrantSubscription))
	r.POST("/internal/v1/accounts/{account_id}/bonus", body(OperationCreditInternalServiceGrantBonus, srv.GrantBonus))
	r.POST("/internal/v1/payments/callback", body(OperationCreditInternalServicePaymentCallback, srv.PaymentCallback))
}

// query 从 query string 和路径参数绑定请求
func query[Req, Reply any](operation string, call func(context.Context, *Req) (*Reply, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in Req
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		return invoke(ctx, operation, &in, call)
	}
}

// body 从请求体和路径参数绑定请求，路径参数优先
func body[Req, Reply any](operation string, call func(context.Context, *Req) (*Reply, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in Req
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		return invoke(ctx, operation, &in, call)
	}
}

func invoke[Req, Reply any](ctx http.Context, operation string, in *Req, call func(context.Context, *Req) (*Reply, error)) error {
	http.SetOperation(ctx, operation)
	h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
		return call(ctx, req.(*Req))
	})
	out, err := h(ctx, in)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}
