package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Base64-encoded 32 byte key used to seal terminal credentials at
	// rest. The default is only suitable for local development.
	TerminalCRKey string `envconfig:"TERMINAL_CREDENTIALS_KEY" default:"Pjk+k4hske5KkKtbaKSVDOgpllRl+0EI6oCAdx88XqI="`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
