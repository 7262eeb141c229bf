package paymentgateway

import (
	"net/http"

	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/smallbiznis/barberconnect/internal/observability/metrics"
	"github.com/smallbiznis/barberconnect/internal/paymentgateway/domain"
	"github.com/smallbiznis/barberconnect/internal/paymentgateway/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("paymentgateway",
	fx.Provide(newGateway),
)

type gatewayParams struct {
	fx.In

	Config  config.Config
	Policy  *config.ConnectPolicyHolder
	Metrics *metrics.Metrics `optional:"true"`
	Log     *zap.Logger
}

func newGateway(p gatewayParams) domain.Gateway {
	return stripe.NewAdapter(stripe.Params{
		Config:     p.Config,
		Policy:     p.Policy,
		HTTPClient: &http.Client{},
		Metrics:    p.Metrics,
		Log:        p.Log,
	})
}
