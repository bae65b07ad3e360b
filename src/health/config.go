package health

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Consecutive failures inside the rolling window before remediation
	// is attempted.
	FailureThreshold int           `envconfig:"HEALTH_FAILURE_THRESHOLD" default:"3"`
	RollingWindow    time.Duration `envconfig:"HEALTH_ROLLING_WINDOW" default:"10m"`
	// Minimum spacing between remediation attempts for one group.
	RemediationCooldown time.Duration `envconfig:"HEALTH_REMEDIATION_COOLDOWN" default:"5m"`
	// How long after triggering remediation the group is given before a
	// still-failing poll escalates.
	VerificationDelay  time.Duration `envconfig:"HEALTH_VERIFICATION_DELAY" default:"60s"`
	RemediationBaseURL string        `envconfig:"REMEDIATION_BASE_URL" default:"http://localhost:9911"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
