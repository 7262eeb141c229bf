package identity

import (
	"net/http"

	"github.com/smallbiznis/barberconnect/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("identity",
	fx.Provide(newVerifier),
)

func newVerifier(cfg config.Config, log *zap.Logger) Verifier {
	return NewHTTPVerifier(cfg, &http.Client{}, log)
}
