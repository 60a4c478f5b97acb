package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

func newTest(pkg, name string, traits ...string) *types.Test {
	t := types.NewTest("pkg.test", pkg, name)
	for _, tr := range traits {
		k, v, err := ParseTrait(tr)
		if err != nil {
			panic(err)
		}
		t.Traits[k] = append(t.Traits[k], v)
	}
	return t
}

func names(tests []*types.Test) []string {
	out := make([]string, 0, len(tests))
	for _, t := range tests {
		out = append(out, t.Method)
	}
	return out
}

func discovered() []*types.Test {
	return []*types.Test{
		newTest("github.com/acme/store", "TestGet", "a=1"),
		newTest("github.com/acme/store", "TestPut_Overwrite", "a=2", "slow=true"),
		newTest("github.com/acme/store", "TestPut_Create", "a=1", "a=3"),
		newTest("github.com/acme/store/cache", "TestEvict"),
		newTest("github.com/acme/storefront", "TestRender", "a=2"),
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *Filters)
		want  []string
	}{
		{
			name:  "empty filters keep everything",
			setup: func(t *testing.T, f *Filters) {},
			want:  []string{"TestGet", "TestPut_Overwrite", "TestPut_Create", "TestEvict", "TestRender"},
		},
		{
			name: "traits are OR-combined",
			setup: func(t *testing.T, f *Filters) {
				require.NoError(t, f.AddTrait("a=1"))
				require.NoError(t, f.AddTrait("a=2"))
			},
			want: []string{"TestGet", "TestPut_Overwrite", "TestPut_Create", "TestRender"},
		},
		{
			name: "notrait excludes regardless of other traits",
			setup: func(t *testing.T, f *Filters) {
				require.NoError(t, f.AddTrait("a=1"))
				require.NoError(t, f.AddNoTrait("a=3"))
			},
			want: []string{"TestGet"},
		},
		{
			name: "notraits are AND-combined",
			setup: func(t *testing.T, f *Filters) {
				require.NoError(t, f.AddNoTrait("a=1"))
				require.NoError(t, f.AddNoTrait("slow=true"))
			},
			want: []string{"TestEvict", "TestRender"},
		},
		{
			name: "method by name or wildcard",
			setup: func(t *testing.T, f *Filters) {
				require.NoError(t, f.AddMethod("TestGet"))
				require.NoError(t, f.AddMethod("*.TestPut_*"))
			},
			want: []string{"TestGet", "TestPut_Overwrite", "TestPut_Create"},
		},
		{
			name: "class groups underscore tests",
			setup: func(t *testing.T, f *Filters) {
				f.AddClass("github.com/acme/store.TestPut")
			},
			want: []string{"TestPut_Overwrite", "TestPut_Create"},
		},
		{
			name: "namespace matches package and below, not siblings",
			setup: func(t *testing.T, f *Filters) {
				f.AddNamespace("github.com/acme/store")
			},
			want: []string{"TestGet", "TestPut_Overwrite", "TestPut_Create", "TestEvict"},
		},
		{
			name: "kinds are AND-combined",
			setup: func(t *testing.T, f *Filters) {
				f.AddNamespace("github.com/acme/store")
				require.NoError(t, f.AddTrait("a=2"))
			},
			want: []string{"TestPut_Overwrite"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New()
			tt.setup(t, f)
			all := discovered()
			got := f.Filter(all)
			assert.Equal(t, tt.want, names(got))
			for _, g := range got {
				assert.Contains(t, all, g, "filtered set must be a subset of discovered")
			}
		})
	}
}

func TestFilterStructLiteral(t *testing.T) {
	f := &Filters{IncludedMethods: []string{"TestEv*"}}
	assert.Equal(t, []string{"TestEvict"}, names(f.Filter(discovered())))
}

func TestParseTrait(t *testing.T) {
	name, value, err := ParseTrait(" category = slow ")
	require.NoError(t, err)
	assert.Equal(t, "category", name)
	assert.Equal(t, "slow", value)

	for _, bad := range []string{"", "category", "=slow", "category="} {
		_, _, err := ParseTrait(bad)
		assert.Error(t, err, "expected error for %q", bad)
	}
}

func TestNilFiltersMatchEverything(t *testing.T) {
	var f *Filters
	assert.True(t, f.Empty())
	assert.Len(t, f.Filter(discovered()), 5)
}
