package rules

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Load reads rules from a YAML stream and validates them.
func Load(r io.Reader) ([]*Rule, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse rules YAML: %w", err)
	}

	seen := make(map[string]bool, len(file.Rules))
	for i, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = true
	}

	return file.Rules, nil
}

// LoadFile loads rules from a single YAML file.
func LoadFile(path string) ([]*Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	rules, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// LoadDir loads every *.yml and *.yaml file in dir, in lexical order.
// Rule IDs must be unique across the whole directory. A missing
// directory loads as zero rules.
func LoadDir(dir string) ([]*Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	var all []*Rule
	seen := make(map[string]string)
	for _, path := range paths {
		rules, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, rule := range rules {
			if prev, ok := seen[rule.ID]; ok {
				return nil, fmt.Errorf("rule id %q in %s already defined in %s", rule.ID, path, prev)
			}
			seen[rule.ID] = path
		}
		all = append(all, rules...)
	}

	return all, nil
}
