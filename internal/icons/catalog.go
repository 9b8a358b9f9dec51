// Package icons suggests gift icons for a letter from a keyword catalog.
package icons

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry maps a set of keywords to one icon.
type Entry struct {
	Keywords []string `yaml:"keywords"`
	Icon     string   `yaml:"icon"`
}

// Catalog is the parsed icon catalog file.
type Catalog struct {
	Icons []Entry `yaml:"icons"`
}

// LoadCatalog reads a catalog file. Unknown keys are rejected so typos in
// the file surface at startup.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read icon catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("failed to parse icon catalog: %w", err)
	}

	for i, e := range cat.Icons {
		if strings.TrimSpace(e.Icon) == "" {
			return nil, fmt.Errorf("icon catalog entry %d: icon is required", i)
		}
		if len(cleanKeywords(e.Keywords)) == 0 {
			return nil, fmt.Errorf("icon catalog entry %d (%s): at least one keyword is required", i, e.Icon)
		}
	}
	return &cat, nil
}

func cleanKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		for _, part := range strings.Split(k, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// keywordList is the stored form of an entry's keywords.
func (e Entry) keywordList() string {
	return strings.Join(cleanKeywords(e.Keywords), ",")
}
