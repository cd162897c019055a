package token

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a token seed file.
type seedFile struct {
	Tokens []*Record `yaml:"tokens"`
}

// LoadSeedFile reads token records from a YAML file. Records are normalized
// and checked for required fields and duplicate IDs or secrets; a single bad
// record fails the whole load so a partial reload never reaches the store.
func LoadSeedFile(path string) ([]*Record, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	ids := make(map[string]struct{}, len(seed.Tokens))
	secrets := make(map[string]struct{}, len(seed.Tokens))

	for i, record := range seed.Tokens {
		if record == nil {
			return nil, fmt.Errorf("seed token %d is empty", i)
		}
		if record.ID == "" {
			return nil, fmt.Errorf("seed token %d is missing an id", i)
		}
		if record.OwnerID == "" {
			return nil, fmt.Errorf("seed token %q is missing an owner_id", record.ID)
		}
		if record.Secret == "" {
			return nil, fmt.Errorf("seed token %q is missing a secret", record.ID)
		}
		if _, dup := ids[record.ID]; dup {
			return nil, fmt.Errorf("seed token id %q appears more than once", record.ID)
		}
		if _, dup := secrets[record.Secret]; dup {
			return nil, fmt.Errorf("seed token %q reuses another token's secret", record.ID)
		}
		ids[record.ID] = struct{}{}
		secrets[record.Secret] = struct{}{}
		record.Normalize()
	}

	return seed.Tokens, nil
}
