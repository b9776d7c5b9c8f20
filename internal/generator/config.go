package generator

import (
	"time"

	"github.com/smallbiznis/invora/internal/config"
)

type Config struct {
	RunInterval time.Duration
	BatchSize   int
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

func NewConfigFromApp(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Generator.RunInterval,
		BatchSize:   cfg.Generator.BatchSize,
	}.withDefaults()
}
