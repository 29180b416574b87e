package network

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a case from a .json, .yaml or .yml file. Missing voltage data
// defaults to 1 p.u. with limits of 0.9 and 1.1.
func Load(path string) (*Case, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open case file")
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeJSON(file)
	case ".yaml", ".yml":
		return DecodeYAML(file)
	}
	return nil, errors.Wrapf(ErrFormat, "%s", path)
}

func DecodeJSON(r io.Reader) (*Case, error) {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	var c Case
	if err := decoder.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode json case")
	}
	return finish(&c)
}

func DecodeYAML(r io.Reader) (*Case, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var c Case
	if err := decoder.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode yaml case")
	}
	return finish(&c)
}

func finish(c *Case) (*Case, error) {
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c as indented JSON.
func Save(path string, c *Case) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode case")
	}
	return errors.Wrap(os.WriteFile(path, b, 0o644), "write case file")
}
