package bacrt

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"nsbaci.org/nsbaci/bvm"
)

// Config configures a Runtime.
type Config struct {
	// Seed seeds the scheduler and the Random instruction.
	// 0 means a random seed.
	Seed uint64 `json:"seed" toml:"seed"`
	// MaxSteps bounds a single call to Run. 0 is unbounded.
	MaxSteps int `json:"max_steps" toml:"max_steps"`
	// TraceLen is the number of executed instructions kept for Trace.
	TraceLen int `json:"trace_len" toml:"trace_len"`
	// Prompt is shown when a thread asks for input.
	Prompt string `json:"prompt" toml:"prompt"`
}

const MaxTraceLen = 1 << 16

func DefaultConfig() Config {
	return Config{
		MaxSteps: 1_000_000,
		TraceLen: 64,
		Prompt:   bvm.DefaultPrompt,
	}
}

func (c *Config) Validate() error {
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps cannot be negative, have %d", c.MaxSteps)
	}
	if c.TraceLen < 0 || c.TraceLen > MaxTraceLen {
		return fmt.Errorf("trace_len must be in [0, %d], have %d", MaxTraceLen, c.TraceLen)
	}
	if c.Prompt == "" {
		return errors.New("prompt cannot be empty")
	}
	return nil
}

// LoadConfig reads a TOML config file.
// Fields missing from the file keep their DefaultConfig values.
func LoadConfig(p string) (Config, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
