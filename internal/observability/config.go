package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/scorebench/internal/config"
)

const (
	defaultMetricsPath           = "/metrics"
	defaultMetricsExportInterval = 10 * time.Second
)

// Config holds logging, tracing and metrics settings for the billing service.
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

	// PrometheusEnabled exposes the billing series on MetricsPath.
	PrometheusEnabled     bool
	MetricsPath           string
	MetricsExportInterval time.Duration
}

// LoadConfig derives observability settings from the application config,
// letting the standard OTEL_* variables override the exporter.
func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName: strings.TrimSpace(cfg.AppName),
		Environment: strings.TrimSpace(getenv("DEPLOYMENT_ENV", cfg.Environment)),
		Version:     strings.TrimSpace(getenv("SERVICE_VERSION", cfg.AppVersion)),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getenv("LOG_FORMAT", "json")),

		OtelEnabled:          getenvBool("OTEL_ENABLED", true),
		OtelExporterEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", strings.TrimSpace(cfg.OTLPEndpoint)),
		OtelExporterProtocol: strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OtelSamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 1),

		PrometheusEnabled:     getenvBool("PROMETHEUS_ENABLED", true),
		MetricsPath:           getenv("METRICS_PATH", defaultMetricsPath),
		MetricsExportInterval: getenvDuration("OTEL_METRIC_EXPORT_INTERVAL", defaultMetricsExportInterval),
	}
	if out.ServiceName == "" {
		out.ServiceName = "scorebench"
	}
	if traces := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); traces != "" {
		out.OtelExporterProtocol = strings.ToLower(traces)
	}
	if !strings.HasPrefix(out.MetricsPath, "/") {
		out.MetricsPath = "/" + out.MetricsPath
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 1
	}
	return out
}

// Debug reports whether verbose logging and stack traces are wanted.
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

// MetricsRoute is the scrape path, or empty when Prometheus is disabled.
func (c Config) MetricsRoute() string {
	if !c.PrometheusEnabled {
		return ""
	}
	if c.MetricsPath == "" {
		return defaultMetricsPath
	}
	return c.MetricsPath
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(getenv(key, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	parsed, err := time.ParseDuration(getenv(key, ""))
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
