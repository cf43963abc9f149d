package args

import (
	"github.com/spf13/pflag"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

var configFilePath string
var environment = EnvironmentDevelopment

// Bind registers the process flags on the given flag set.
func Bind(flags *pflag.FlagSet) {
	flags.StringVarP(&configFilePath, "config", "c", "", "path to a yaml config file")
	flags.StringVarP(&environment, "environment", "e", EnvironmentDevelopment, "development or production")
}

func ConfigFilePath() string {
	return configFilePath
}

func IsProduction() bool {
	return environment == EnvironmentProduction
}
