package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger: human-readable development output for the
// local environment, JSON production output everywhere else.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
