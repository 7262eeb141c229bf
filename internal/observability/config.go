package observability

import (
	"strings"

	"github.com/smallbiznis/barberconnect/internal/config"
)

const (
	defaultServiceName   = "barberconnect"
	defaultSamplingRatio = 0.1
)

// Config is the normalized telemetry view of config.Config shared by the
// logger, tracing and metrics providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	tel := cfg.Telemetry
	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             lowerOr(tel.LogLevel, "info"),
		LogFormat:            lowerOr(tel.LogFormat, "json"),
		OtelEnabled:          tel.OtelEnabled && strings.TrimSpace(cfg.OTLPEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: normalizeProtocol(tel.OtelProtocol),
		OtelSamplingRatio:    clampRatio(tel.SamplingRatio),
	}
}

// Debug enables verbose request logging and gin debug mode.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lowerOr(value, def string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return def
	}
	return value
}

// normalizeProtocol maps the OTLP protocol names to the two exporters we ship.
func normalizeProtocol(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "http", "http/protobuf":
		return "http"
	default:
		return "grpc"
	}
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return defaultSamplingRatio
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
