package lsp

import (
	"log"
	"runtime"

	"github.com/donaldong/sorbet/parser"
)

// Config is the resolved configuration for one server instance. The loop
// writes only RootPath afterwards, from the initialize request.
type Config struct {
	// RootPath is the workspace root; filled from the initialize request if
	// not set on the command line.
	RootPath string

	// DisableFastPath forces every edit onto the slow path.
	DisableFastPath bool

	// Capability toggles.
	DocumentSymbolEnabled    bool
	DocumentHighlightEnabled bool
	SignatureHelpEnabled     bool
	QuickFixEnabled          bool

	Verbose bool
	Workers int

	Logger *log.Logger
	Parser parser.Parser
}

// NewConfig returns a Config with capability toggles on and the built-in
// parser, suitable as a test default.
func NewConfig(logger *log.Logger) *Config {
	return &Config{
		DocumentSymbolEnabled:    true,
		DocumentHighlightEnabled: true,
		SignatureHelpEnabled:     true,
		QuickFixEnabled:          true,
		Workers:                  runtime.NumCPU(),
		Logger:                   logger,
		Parser:                   parser.Default(),
	}
}

func (c *Config) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

func (c *Config) debugf(format string, args ...interface{}) {
	if c.Verbose && c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

func (c *Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func (c *Config) parser() parser.Parser {
	if c.Parser != nil {
		return c.Parser
	}
	return parser.Default()
}
