// Package config loads .includecheck.toml, the project-level configuration
// for the analyzer.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/phobologic/includecheck/internal/stdlib"
)

// FileName is the configuration file looked up next to the analyzed sources.
const FileName = ".includecheck.toml"

// Config mirrors the TOML file.
type Config struct {
	// IncludeDirs are searched for included files, in order.
	IncludeDirs []string `toml:"include_dirs"`
	// AnalyzeStdlib is the standard-library analysis setting. The terminal
	// report flags unmatched angle-bracket includes whether or not it is set.
	AnalyzeStdlib bool         `toml:"analyze_stdlib"`
	Policy        PolicyConfig `toml:"policy"`
	// Stdlib adds symbol→header mappings on top of the built-in table.
	Stdlib []StdlibSymbol `toml:"stdlib"`
}

// PolicyConfig mirrors the [policy] section.
type PolicyConfig struct {
	Construction bool `toml:"construction"`
	Members      bool `toml:"members"`
	Operators    bool `toml:"operators"`
}

// StdlibSymbol is one extra [[stdlib]] mapping.
type StdlibSymbol struct {
	Symbol string `toml:"symbol"`
	Header string `toml:"header"`
}

// Load reads and applies a configuration file. A missing file yields the
// zero configuration and no error.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing %s: unknown key %q", path, undecoded[0].String())
	}
	for _, s := range cfg.Stdlib {
		if s.Symbol == "" || s.Header == "" {
			return nil, fmt.Errorf("parsing %s: stdlib entries need both symbol and header", path)
		}
		stdlib.Register(s.Symbol, s.Header)
	}
	return &cfg, nil
}

// FindFor returns the configuration path next to a source file or directory.
func FindFor(target string) string {
	info, err := os.Stat(target)
	dir := target
	if err != nil || !info.IsDir() {
		dir = filepath.Dir(target)
	}
	return filepath.Join(dir, FileName)
}

// Default is the commented configuration written by `includecheck init`.
const Default = `# includecheck configuration.

# Directories searched for included files, in order.
include_dirs = ["include"]

# Standard-library analysis, off by default. The terminal report flags
# unmatched angle-bracket includes whether or not it is set.
analyze_stdlib = false

[policy]
# Count constructing a type as a use even when the type is not named.
construction = false
# Count member accesses as references to the member.
members = false
# Count overloaded operator calls as references.
operators = false

# Extra standard-library mappings on top of the built-in table:
# [[stdlib]]
# symbol = "mylib::span"
# header = "<mylib/span.h>"
`
