package poller

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"120s"`
	// Hard bound on one poll cycle, session included. A cycle that
	// exceeds it is a failure and its partial results are discarded.
	CycleTimeout time.Duration `envconfig:"POLL_CYCLE_TIMEOUT" default:"60s"`
	// History window on the first cycle after startup.
	InitialLookback time.Duration `envconfig:"POLL_INITIAL_LOOKBACK" default:"720h"`
	// Overlap re-fetched on every later cycle; dedup absorbs the repeats.
	OverlapLookback time.Duration `envconfig:"POLL_OVERLAP_LOOKBACK" default:"48h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
