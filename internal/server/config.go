package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/cardfelt/holdemd/internal/engine"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
	Bots   []BotConfig    `hcl:"bot,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address               string `hcl:"address,optional"`
	Port                  int    `hcl:"port,optional"`
	LogLevel              string `hcl:"log_level,optional"`
	HistoryDir            string `hcl:"history_dir,optional"`
	HandHistoryLimit      int    `hcl:"hand_history_limit,optional"`
	ActionTimeoutSeconds  int    `hcl:"action_timeout_seconds,optional"`
	InterHandDelaySeconds int    `hcl:"inter_hand_delay_seconds,optional"`
}

// TableConfig defines one table created at startup.
type TableConfig struct {
	Name          string `hcl:"name,label"`
	MaxPlayers    int    `hcl:"max_players,optional"`
	SmallBlind    int64  `hcl:"small_blind"`
	BigBlind      int64  `hcl:"big_blind"`
	StartingStack int64  `hcl:"starting_stack,optional"`
	Visibility    string `hcl:"visibility,optional"`
}

// BotConfig seats bots at configured tables.
type BotConfig struct {
	Name     string   `hcl:"name,label"`
	Strategy string   `hcl:"strategy"`
	Games    []string `hcl:"games,optional"` // table names; empty means every table
	Count    int      `hcl:"count,optional"`
}

// DefaultConfig returns the configuration used when no file exists: one
// six-seat table and no bots.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:               "localhost",
			Port:                  8080,
			LogLevel:              "info",
			HandHistoryLimit:      100,
			ActionTimeoutSeconds:  30,
			InterHandDelaySeconds: 3,
		},
		Tables: []TableConfig{
			{
				Name:          "main",
				MaxPlayers:    6,
				SmallBlind:    5,
				BigBlind:      10,
				StartingStack: 1000,
				Visibility:    string(engine.VisibilityShowdown),
			},
		},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to
// defaults when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if config.Server.Address == "" {
		config.Server.Address = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = "info"
	}
	if config.Server.HandHistoryLimit == 0 {
		config.Server.HandHistoryLimit = 100
	}
	if config.Server.ActionTimeoutSeconds == 0 {
		config.Server.ActionTimeoutSeconds = 30
	}
	if config.Server.InterHandDelaySeconds == 0 {
		config.Server.InterHandDelaySeconds = 3
	}

	for i := range config.Tables {
		if config.Tables[i].MaxPlayers == 0 {
			config.Tables[i].MaxPlayers = 6
		}
		if config.Tables[i].StartingStack == 0 {
			config.Tables[i].StartingStack = config.Tables[i].BigBlind * 100
		}
		if config.Tables[i].Visibility == "" {
			config.Tables[i].Visibility = string(engine.VisibilityShowdown)
		}
	}

	for i := range config.Bots {
		if config.Bots[i].Count == 0 {
			config.Bots[i].Count = 1
		}
		if len(config.Bots[i].Games) == 0 {
			for _, table := range config.Tables {
				config.Bots[i].Games = append(config.Bots[i].Games, table.Name)
			}
		}
	}

	return &config, nil
}

// Validate validates the server configuration. A configuration with no
// tables is legal: games can be created through the admin API.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	names := make(map[string]bool, len(c.Tables))
	for _, table := range c.Tables {
		if table.Name == "" {
			return fmt.Errorf("table name must not be empty")
		}
		if names[table.Name] {
			return fmt.Errorf("duplicate table name %s", table.Name)
		}
		names[table.Name] = true
		if table.SmallBlind <= 0 {
			return fmt.Errorf("table %s: small blind must be positive", table.Name)
		}
		if table.BigBlind <= table.SmallBlind {
			return fmt.Errorf("table %s: big blind must be greater than small blind", table.Name)
		}
		if table.MaxPlayers < 2 || table.MaxPlayers > 10 {
			return fmt.Errorf("table %s: max players must be between 2 and 10", table.Name)
		}
		if table.StartingStack < table.BigBlind {
			return fmt.Errorf("table %s: starting stack must cover the big blind", table.Name)
		}
		switch engine.Visibility(table.Visibility) {
		case engine.VisibilityShowdown, engine.VisibilityDelayed, engine.VisibilityImmediate:
		default:
			return fmt.Errorf("table %s: invalid visibility %s", table.Name, table.Visibility)
		}
	}

	validStrategies := map[string]bool{
		"call": true,
		"rand": true,
	}
	for _, b := range c.Bots {
		if !validStrategies[b.Strategy] {
			return fmt.Errorf("bot %s: invalid strategy %s", b.Name, b.Strategy)
		}
		if b.Count < 0 {
			return fmt.Errorf("bot %s: count must not be negative", b.Name)
		}
		for _, game := range b.Games {
			if !names[game] {
				return fmt.Errorf("bot %s: unknown table %s", b.Name, game)
			}
		}
	}

	return nil
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// ActionTimeout returns the per-decision clock as a duration.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.Server.ActionTimeoutSeconds) * time.Second
}

// InterHandDelay returns the pause between hands as a duration.
func (c *Config) InterHandDelay() time.Duration {
	return time.Duration(c.Server.InterHandDelaySeconds) * time.Second
}

// EngineConfig converts a table block into engine terms.
func (tc TableConfig) EngineConfig() engine.Config {
	return engine.Config{
		SmallBlind:    tc.SmallBlind,
		BigBlind:      tc.BigBlind,
		StartingStack: tc.StartingStack,
		MaxSeats:      tc.MaxPlayers,
		Visibility:    engine.Visibility(tc.Visibility),
	}
}
