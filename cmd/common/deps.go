// Package common provides shared wiring for command implementations.
package common

import (
	"github.com/jonesrussell/north-cloud/rssnews/internal/config"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

// CommandDeps holds the dependencies every command needs. The root command
// fills it before any subcommand runs.
type CommandDeps struct {
	Config  *config.Config
	Logger  logger.Logger
	Version string
}

// Validate ensures all required dependencies are present.
func (d *CommandDeps) Validate() error {
	if d == nil || d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}
