package connectaccount

import (
	"github.com/smallbiznis/barberconnect/internal/connectaccount/domain"
	"github.com/smallbiznis/barberconnect/internal/connectaccount/repository"
	"github.com/smallbiznis/barberconnect/internal/connectaccount/service"
	"github.com/smallbiznis/barberconnect/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("connectaccount.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(l *ratelimit.ConnectLimiter) domain.RateLimiter { return l }),
	fx.Provide(service.New),
)
