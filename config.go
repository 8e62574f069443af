package xqtsrunner

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// RunnerConfig tunes a Runner instance. It is deliberately small: catalog
// parsing and XQTS-suite-level configuration remain out of scope (spec.md
// §1 Non-goals); this only covers the Runner's own cooperative-scheduling
// knobs, in the teacher's config.go idiom.
type RunnerConfig struct {
	// MailboxSize bounds how many inbound messages a Runner buffers
	// before a sender blocks. 0 means DefaultMailboxSize.
	MailboxSize int `yaml:"mailboxSize"`

	// DefaultCharset names a charset for available-text-resources that
	// declare no encoding; normalize fills in "UTF-8". The Context Builder
	// does not read this field: it always decodes such resources as UTF-8.
	DefaultCharset string `yaml:"defaultCharset"`
}

// DefaultMailboxSize is used when RunnerConfig.MailboxSize is zero.
const DefaultMailboxSize = 64

// DefaultRunnerConfig returns the configuration a Runner uses when none is
// supplied.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MailboxSize:    DefaultMailboxSize,
		DefaultCharset: "UTF-8",
	}
}

// normalize fills in zero-valued fields with their defaults.
func (c RunnerConfig) normalize() RunnerConfig {
	if c.MailboxSize <= 0 {
		c.MailboxSize = DefaultMailboxSize
	}

	if c.DefaultCharset == "" {
		c.DefaultCharset = "UTF-8"
	}

	return c
}

// Normalize returns c with zero-valued fields replaced by their defaults.
func (c RunnerConfig) Normalize() RunnerConfig {
	return c.normalize()
}

// LoadRunnerConfig reads a YAML-encoded RunnerConfig from path, defaulting
// any field the file omits.
func LoadRunnerConfig(path string) (RunnerConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RunnerConfig{}, fmt.Errorf("reading runner config %q: %w", path, err)
	}

	cfg := DefaultRunnerConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return RunnerConfig{}, fmt.Errorf("parsing runner config %q: %w", path, err)
	}

	return cfg.normalize(), nil
}
