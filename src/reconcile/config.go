package reconcile

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Interval between periodic reconciliation passes.
	Interval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"60s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
