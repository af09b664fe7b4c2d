package routing

import (
	"fmt"
	"time"

	"github.com/aescanero/shiptrack/pkg/adapters/routing/direct"
	"github.com/aescanero/shiptrack/pkg/adapters/routing/osrm"
	"github.com/aescanero/shiptrack/pkg/ports"
	"go.uber.org/zap"
)

// Config holds router configuration
type Config struct {
	Provider string
	BaseURL  string
	Profile  string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewRouter creates a new router based on provider
func NewRouter(cfg *Config) (ports.Router, error) {
	switch cfg.Provider {
	case "osrm":
		return osrm.NewClient(cfg.BaseURL, cfg.Profile, cfg.Timeout, cfg.Logger), nil
	case "direct":
		return direct.NewRouter(), nil
	default:
		return nil, fmt.Errorf("unsupported routing provider: %s", cfg.Provider)
	}
}
