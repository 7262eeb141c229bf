package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ConnectPolicy is the part of the configuration operators may change without
// a restart.
type ConnectPolicy struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	DashboardPath  string   `mapstructure:"dashboardPath"`
}

type ConnectPolicyHolder struct {
	current atomic.Value // holds ConnectPolicy
}

// NewStaticConnectPolicyHolder returns a holder that never reloads.
func NewStaticConnectPolicyHolder(policy ConnectPolicy) *ConnectPolicyHolder {
	holder := &ConnectPolicyHolder{}
	holder.current.Store(normalizePolicy(policy))
	return holder
}

func NewConnectPolicyHolder(cfg Config, log *zap.Logger) (*ConnectPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("connect")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/barberconnect")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BARBERCONNECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("connect.allowedOrigins", cfg.Connect.AllowedOrigins)
	v.SetDefault("connect.dashboardPath", cfg.Connect.DashboardPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var policy ConnectPolicy
	if err := v.UnmarshalKey("connect", &policy); err != nil {
		return nil, err
	}
	policy = normalizePolicy(policy)
	if err := validateConnectPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticConnectPolicyHolder(policy)
	if v.ConfigFileUsed() == "" {
		return holder, nil
	}

	log = log.Named("config.connect")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ConnectPolicy
		if err := v.UnmarshalKey("connect", &updated); err != nil {
			log.Warn("connect policy reload failed", zap.Error(err))
			return
		}
		updated = normalizePolicy(updated)
		if err := validateConnectPolicy(updated); err != nil {
			log.Warn("invalid connect policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("connect policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ConnectPolicyHolder) Get() ConnectPolicy {
	return h.current.Load().(ConnectPolicy)
}

func validateConnectPolicy(p ConnectPolicy) error {
	if len(p.AllowedOrigins) == 0 {
		return errors.New("connect.allowedOrigins cannot be empty")
	}
	if !strings.HasPrefix(strings.TrimSpace(p.DashboardPath), "/") {
		return errors.New("connect.dashboardPath must start with /")
	}
	return nil
}

func normalizePolicy(p ConnectPolicy) ConnectPolicy {
	origins := make([]string, 0, len(p.AllowedOrigins))
	for _, o := range p.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	path := strings.TrimSpace(p.DashboardPath)
	if path == "" {
		path = "/dashboard"
	}
	return ConnectPolicy{AllowedOrigins: origins, DashboardPath: path}
}
