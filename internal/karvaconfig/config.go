// Package karvaconfig loads engine settings from karva.toml or karva.star,
// adapted from the teacher's internal/skyconfig package: dual TOML/
// Starlark format dispatch by extension, CLI > config-file > default
// precedence resolved by the caller.
package karvaconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

func numCPU() int { return runtime.NumCPU() }

// Duration wraps time.Duration for TOML/JSON string durations
// ("30s", "2m"), matching the teacher's Duration wrapper exactly. Its one
// use, KarvaConfig.Timeout, is loaded but not read by the engine: the
// config-load timeout is DefaultStarlarkTimeout, and workers and tests
// run without a timeout.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// KarvaConfig mirrors the teacher's TestConfig shape, renamed fields for
// this domain.
type KarvaConfig struct {
	Timeout            Duration `toml:"timeout" json:"timeout"`
	NumWorkers         string   `toml:"num_workers" json:"num_workers"` // "auto" or an integer
	TestPrefix         string   `toml:"test_prefix" json:"test_prefix"`
	FailFast           bool     `toml:"fail_fast" json:"fail_fast"`
	RespectIgnoreFiles bool     `toml:"respect_ignore_files" json:"respect_ignore_files"`
	ShowOutput         bool     `toml:"show_output" json:"show_output"`
	OutputFormat       string   `toml:"output_format" json:"output_format"`
}

// Config is the top-level file shape.
type Config struct {
	Karva KarvaConfig `toml:"karva" json:"karva"`
}

// DefaultConfig mirrors spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{Karva: KarvaConfig{
		NumWorkers:         "auto",
		TestPrefix:         "test",
		FailFast:           false,
		RespectIgnoreFiles: true,
		ShowOutput:         false,
		OutputFormat:       "text",
		Timeout:            Duration(30 * time.Second),
	}}
}

// LoadConfig dispatches to the TOML or Starlark loader by file extension.
func LoadConfig(path string) (Config, error) {
	switch filepath.Ext(path) {
	case ".toml":
		return LoadTOMLConfig(path)
	case ".star":
		return LoadStarlarkConfig(path, DefaultStarlarkTimeout)
	default:
		return Config{}, fmt.Errorf("unrecognized config extension %q", filepath.Ext(path))
	}
}

// DiscoverConfig walks up from dir to the filesystem root looking for
// karva.toml then karva.star, matching the teacher's walk-up convention.
func DiscoverConfig(dir string) (string, bool) {
	for {
		for _, name := range []string{"karva.toml", "karva.star"} {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// ParseNumWorkers resolves "auto"/numeric/other, matching the teacher's
// parseParallelism helper.
func ParseNumWorkers(raw string) int {
	if raw == "" || raw == "auto" {
		return numCPU()
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return 1
}

// marshalForLog renders c as indented JSON. Nothing in the module calls it.
func marshalForLog(c Config) string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
