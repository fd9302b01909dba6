package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads one policy seed from a YAML file. A file that does
// not parse or fails shape validation is an error; snippet-level checks
// happen later, when the seed goes through the policy service.
func LoadFromFile(path string) (*CreateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var seed CreateRequest
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy file %s: %w", path, err)
	}

	return &seed, nil
}

// LoadFromDirectory reads every .yaml/.yml seed in a directory, one
// policy per file, in lexical filename order; numbered filenames give a
// stable apply order. A missing directory yields an empty slice rather
// than an error, matching the config loader's treatment of optional
// files. A malformed file aborts the whole load so a typo cannot
// silently drop a policy at startup.
func LoadFromDirectory(dir string) ([]CreateRequest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy directory %s: %w", dir, err)
	}

	var seeds []CreateRequest
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		seed, err := LoadFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, *seed)
	}

	return seeds, nil
}
