package pkgjson

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithStringRepository(t *testing.T) {
	pkg, err := Parse(`{"name":"mypkg","version":"1.0.0","repository":"github.com/x/y","dependencies":{"left-pad":"^1.0.0"}}`)
	require.NoError(t, err)
	assert.Equal(t, "mypkg", pkg.Name)
	assert.Equal(t, "github.com/x/y", pkg.Repository.URL)
}

func TestParseWithObjectRepository(t *testing.T) {
	pkg, err := Parse(`{"name":"mypkg","repository":{"type":"git","url":"git+https://github.com/x/y.git"}}`)
	require.NoError(t, err)
	assert.Equal(t, "git+https://github.com/x/y.git", pkg.Repository.URL)
}

func TestListDependenciesMergesAndSorts(t *testing.T) {
	pkg := &Package{
		Name:            "mypkg",
		Dependencies:    map[string]string{"zeta": "1.0.0", "alpha": "2.0.0"},
		DevDependencies: map[string]string{"alpha": "9.9.9", "mid": "0.1.0"},
	}
	deps := pkg.ListDependencies()
	require.Len(t, deps, 3)
	assert.Equal(t, "alpha", deps[0].Name)
	assert.Equal(t, "2.0.0", deps[0].Version, "dependencies take priority over devDependencies")
	assert.Equal(t, "mid", deps[1].Name)
	assert.Equal(t, "zeta", deps[2].Name)
	for _, d := range deps {
		assert.Equal(t, "mypkg", d.DependeePackageName)
	}
}

func TestListDependenciesExactShape(t *testing.T) {
	pkg := &Package{
		Name:         "mypkg",
		Dependencies: map[string]string{"left-pad": "^1.0.0"},
	}
	want := []Attribute{
		{Name: "left-pad", Version: "^1.0.0", DependeePackageName: "mypkg"},
	}
	if diff := cmp.Diff(want, pkg.ListDependencies()); diff != "" {
		t.Fatalf("ListDependencies() mismatch (-want +got):\n%s", diff)
	}
}
