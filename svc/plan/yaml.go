package plan

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadYAML builds a catalog from a YAML document with a top-level "plans" list.
func LoadYAML(r io.Reader) (*MemoryCatalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Join(ErrInvalidPlan, err)
	}
	return NewMemoryCatalog(f.Plans...)
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (*MemoryCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToReadFile, err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// Default returns the built-in catalog: starter (free), professional and enterprise.
func Default() *MemoryCatalog {
	c, err := LoadYAML(bytes.NewReader(defaultPlans))
	if err != nil {
		panic("plan: embedded catalog is invalid: " + err.Error())
	}
	return c
}
