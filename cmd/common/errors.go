package common

import "errors"

var (
	// ErrLoggerRequired is returned when CommandDeps.Logger is nil
	ErrLoggerRequired = errors.New("logger is required")

	// ErrConfigRequired is returned when CommandDeps.Config is nil
	ErrConfigRequired = errors.New("config is required")

	// ErrNoSources is returned when the registry holds no feed sources.
	ErrNoSources = errors.New("no feed sources registered, run 'rssnews sources load' first")
)
