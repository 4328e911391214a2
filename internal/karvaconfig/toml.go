package karvaconfig

import (
	"github.com/BurntSushi/toml"
)

// LoadTOMLConfig parses karva.toml, adapted unchanged from the teacher's
// toml.go.
func LoadTOMLConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
