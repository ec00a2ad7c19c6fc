package fetcher

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type vocabularyFile struct {
	Categories []string `yaml:"categories"`
}

// LoadCategories reads a category vocabulary from a YAML file of the form
//
//	categories:
//	  - Retail
//	  - Finance
//
// Entries are trimmed; blanks and duplicates are dropped.
func LoadCategories(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read categories %s", path)
	}
	var vf vocabularyFile
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse categories %s", path)
	}

	seen := make(map[string]bool, len(vf.Categories))
	var out []string
	for _, c := range vf.Categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, eris.Errorf("fetcher: %s lists no categories", path)
	}
	return out, nil
}
