package opf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"power-system-opf/pips"
	"power-system-opf/powerflow"
)

// Config is the file form of the OPF settings. Zero pips fields take their
// defaults.
type Config struct {
	DC          bool                `json:"dc" yaml:"dc"`
	FlowLimit   powerflow.FlowLimit `json:"flow_limit" yaml:"flow_limit"`
	AngleLimits bool                `json:"angle_limits" yaml:"angle_limits"`
	DCAlgorithm Algorithm           `json:"dc_algorithm" yaml:"dc_algorithm"`
	PIPS        pips.Options        `json:"pips" yaml:"pips"`
}

// LoadConfig reads a .json, .yaml or .yml config file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read opf config")
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		return nil, errors.Errorf("opf config %s: unknown format", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode opf config %s", path)
	}
	return &cfg, nil
}

func (c *Config) Options() []Option {
	return []Option{
		WithDC(c.DC),
		WithFlowLimit(c.FlowLimit),
		WithAngleLimits(c.AngleLimits),
		WithDCAlgorithm(c.DCAlgorithm),
		WithPIPSOptions(c.PIPS),
	}
}
