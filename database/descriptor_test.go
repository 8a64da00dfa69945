package database

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/dbmux/config"
)

func TestDescriptorFromConfig(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:    "pgx",
		Write:     []string{"postgres://primary/app"},
		Read:      []string{"postgres://replica-a/app", "postgres://replica-b/app"},
		Prefix:    "app_",
		FetchMode: "raw",
	}

	desc, err := DescriptorFromConfig(cfg, newFakeConnector())
	require.NoError(t, err)

	assert.Equal(t, []Target{{Name: "write-0", Driver: "pgx", DSN: "postgres://primary/app"}}, desc.WriteTargets())
	assert.Len(t, desc.ReadTargets(), 2)
	assert.Equal(t, "app_", desc.Prefix())
	assert.Equal(t, FetchRaw, desc.FetchMode())
	assert.NotNil(t, desc.Connector())
}

func TestDescriptorFromConfig_Errors(t *testing.T) {
	_, err := DescriptorFromConfig(config.DatabaseConfig{Driver: "mysql"}, nil)
	assert.Error(t, err, "write target required")

	_, err = DescriptorFromConfig(config.DatabaseConfig{Driver: "mysql", Write: []string{"x"}, FetchMode: "column"}, nil)
	assert.Error(t, err)
}

func TestRoundRobinReaderSelector(t *testing.T) {
	reads := []Target{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	desc := NewStaticDescriptor(nil, reads, "", FetchAssoc, nil)

	var firsts []string
	for i := 0; i < 4; i++ {
		order := desc.ReadTargets()
		require.Len(t, order, 3)
		firsts = append(firsts, order[0].Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, firsts)
	assert.Equal(t, "a", reads[0].Name, "configured order is not mutated")
}

func TestRoundRobinReaderSelector_CounterWraps(t *testing.T) {
	targets := []Target{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}, {Name: "e"}, {Name: "f"}, {Name: "g"}}
	sel := &RoundRobinReaderSelector{}
	sel.next.Store(math.MaxUint64)

	// (2^64-1) mod 7 == 1
	assert.Equal(t, "b", sel.Order(targets)[0].Name)
	assert.Equal(t, "a", sel.Order(targets)[0].Name)
}

func TestStaticDescriptor_HasReadTargetsDoesNotRotate(t *testing.T) {
	desc := NewStaticDescriptor(nil, []Target{{Name: "a"}, {Name: "b"}}, "", FetchAssoc, nil)
	for i := 0; i < 3; i++ {
		assert.True(t, desc.HasReadTargets())
	}
	assert.Equal(t, "a", desc.ReadTargets()[0].Name)
	assert.False(t, NewStaticDescriptor(nil, nil, "", FetchAssoc, nil).HasReadTargets())
}

type fixedSelector struct{}

func (fixedSelector) Order(targets []Target) []Target { return targets }

func TestWithReaderSelector(t *testing.T) {
	reads := []Target{{Name: "a"}, {Name: "b"}}
	desc := NewStaticDescriptor(nil, reads, "", FetchAssoc, nil, WithReaderSelector(fixedSelector{}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, "a", desc.ReadTargets()[0].Name)
	}
}

func TestParseFetchMode(t *testing.T) {
	for in, want := range map[string]FetchMode{"": FetchAssoc, "assoc": FetchAssoc, "raw": FetchRaw} {
		got, err := ParseFetchMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" {
			assert.Equal(t, in, got.String())
		}
	}

	_, err := ParseFetchMode("both")
	assert.Error(t, err)
}
