package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Seeder is implemented by backends that can be populated with fixtures.
// The console never writes; seeding exists for tests and local demos.
type Seeder interface {
	PutHash(ctx context.Context, key string, fields map[string]string) error
	PutList(ctx context.Context, key string, values ...string) error
}

// Fixture is the YAML document accepted by LoadFixture.
//
//	hashes:
//	  SEATA_GLOBAL_LOCK10.0.0.1:8091:42:
//	    xid: 10.0.0.1:8091:42
//	    transactionId: "42"
//	lists:
//	  SEATA_XID_BRANCHES_10.0.0.1:8091:42: [SEATA_BRANCH_4201]
type Fixture struct {
	Hashes map[string]map[string]string `yaml:"hashes"`
	Lists  map[string][]string          `yaml:"lists"`
}

// LoadFixture decodes a YAML fixture from r and writes it through s in key
// order. It returns the number of keys written.
func LoadFixture(ctx context.Context, s Seeder, r io.Reader) (int, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: decode fixture: %w", err)
	}
	written := 0
	for _, key := range sortedMapKeys(fx.Hashes) {
		if err := s.PutHash(ctx, key, fx.Hashes[key]); err != nil {
			return written, fmt.Errorf("storage: seed hash %s: %w", key, err)
		}
		written++
	}
	for _, key := range sortedMapKeys(fx.Lists) {
		if err := s.PutList(ctx, key, fx.Lists[key]...); err != nil {
			return written, fmt.Errorf("storage: seed list %s: %w", key, err)
		}
		written++
	}
	return written, nil
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
