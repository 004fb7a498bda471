package server

import (
	"credit-service/internal/conf"
	"credit-service/internal/service"

	"github.com/gaoyong06/go-pkg/middleware/app_id"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(c *conf.Server, credit *service.CreditService, internal *service.CreditInternalService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			app_id.Middleware(),
			logging.Server(logger),
		),
	}
	if c != nil && c.Http != nil {
		if c.Http.Network != "" {
			opts = append(opts, http.Network(c.Http.Network))
		}
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != nil {
			opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)
	srv.Handle("/metrics", promhttp.Handler())

	// 外部接口（面向前端）
	service.RegisterCreditServiceHTTPServer(srv, credit)

	// 内部接口（面向 Gateway/Payment）
	service.RegisterCreditInternalServiceHTTPServer(srv, internal)

	return srv
}
