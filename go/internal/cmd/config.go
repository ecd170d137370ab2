package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcurtis22/triviarena/go/internal/game"
)

type Config struct {
	Game GameSettings `yaml:"game"`
	Nats NatsSettings `yaml:"nats"`
}

type GameSettings struct {
	Room              string   `yaml:"room"`
	Rooms             []string `yaml:"rooms"`
	MinPlayers        int      `yaml:"min_players"`
	WaitPeriodSec     int      `yaml:"wait_period_sec"`
	QuestionPeriodSec int      `yaml:"question_period_sec"`
	ResolveDelaySec   int      `yaml:"resolve_delay_sec"`
	GracePeriodSec    int      `yaml:"grace_period_sec"`
	// ForcedWinners switches winner selection to the explicit override
	// policy. Leave empty outside demos.
	ForcedWinners []string `yaml:"forced_winners"`
}

type NatsSettings struct {
	URL string `yaml:"url"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func defaultConfig() *Config {
	g := game.DefaultConfig()
	return &Config{
		Game: GameSettings{
			Room:              g.Room,
			Rooms:             g.Rooms,
			MinPlayers:        g.MinPlayers,
			WaitPeriodSec:     int(g.WaitPeriod.Seconds()),
			QuestionPeriodSec: int(g.QuestionPeriod.Seconds()),
			ResolveDelaySec:   int(g.ResolveDelay.Seconds()),
			GracePeriodSec:    int(g.GracePeriod.Seconds()),
		},
	}
}

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

func (c *Config) gameConfig() game.Config {
	return game.Config{
		Room:           c.Game.Room,
		Rooms:          c.Game.Rooms,
		MinPlayers:     c.Game.MinPlayers,
		WaitPeriod:     time.Duration(c.Game.WaitPeriodSec) * time.Second,
		QuestionPeriod: time.Duration(c.Game.QuestionPeriodSec) * time.Second,
		ResolveDelay:   time.Duration(c.Game.ResolveDelaySec) * time.Second,
		GracePeriod:    time.Duration(c.Game.GracePeriodSec) * time.Second,
		ForcedWinners:  c.Game.ForcedWinners,
	}
}
