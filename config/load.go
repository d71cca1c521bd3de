package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. TUMORCLASSIFIER_SERVER_ADDR.
const EnvPrefix = "tumorclassifier"

// Load reads the configuration from an optional file and the environment on
// top of the defaults, then validates it.
//
// Arguments:
//   - v: The viper instance, with flags already bound.
//   - file: Path of a YAML file, empty to use defaults and environment only.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if reading, decoding or validation fails.
func Load(v *viper.Viper, file string) (*Config, error) {
	cfg := New()
	if err := SetDefaults(v, cfg); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// SetDefaults registers every leaf of cfg as a viper default so that
// environment variables can override any key.
func SetDefaults(v *viper.Viper, cfg *Config) error {
	tree, err := toMap(cfg)
	if err != nil {
		return err
	}
	setLeaves(v, "", tree)
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func toMap(cfg *Config) (map[string]interface{}, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal defaults")
	}
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(out, &tree); err != nil {
		return nil, errors.Wrap(err, "unmarshal defaults")
	}
	return tree, nil
}

func setLeaves(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok && len(sub) > 0 {
			setLeaves(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}
