package app

import (
	"errors"
	"fmt"
)

// Commands understood by Run.
const (
	CommandResolve    = "resolve"
	CommandLoad       = "load"
	CommandPrefetch   = "prefetch"
	CommandInvalidate = "invalidate"
	CommandWatch      = "watch"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // manifest file or directory
	Command    string
	Args       []string
	Caller     string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	Root            string // overrides the executor root of the manifest
	DevServerURL    string // overrides the dev_server url of the manifest
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}

	switch cfg.Command {
	case CommandResolve, CommandLoad, CommandPrefetch:
		if len(cfg.Args) != 1 {
			return nil, fmt.Errorf("%s expects exactly one script id, got %d", cfg.Command, len(cfg.Args))
		}
	case CommandInvalidate:
	case CommandWatch:
		if len(cfg.Args) != 0 {
			return nil, errors.New("watch takes no arguments")
		}
	case "":
		return nil, errors.New("a command is required")
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}

	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}

	return &cfg, nil
}
