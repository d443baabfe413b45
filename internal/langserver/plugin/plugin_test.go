package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResolver struct {
	found map[string]bool
}

func (r fakeResolver) ResolveModule(name string, _ []string) (interface{}, bool) {
	if r.found[name] {
		return "factory:" + name, true
	}
	return nil, false
}

func TestLoadAppliesResolvedPlugins(t *testing.T) {
	resolver := fakeResolver{found: map[string]bool{"good-plugin": true}}
	loader := New(resolver, nil)

	var applied []string
	cfg := Config{GlobalPlugins: []string{"good-plugin", "missing-plugin"}}
	loader.Load(cfg, "/ws", func(factory interface{}, _ map[string]interface{}) (interface{}, error) {
		applied = append(applied, factory.(string))
		return nil, nil
	})

	assert.Equal(t, []string{"factory:good-plugin"}, applied)
}

func TestLoadContinuesAfterApplyFailure(t *testing.T) {
	resolver := fakeResolver{found: map[string]bool{"a": true, "b": true}}
	loader := New(resolver, nil)

	var applied []string
	cfg := Config{GlobalPlugins: []string{"a", "b"}}
	loader.Load(cfg, "/ws", func(factory interface{}, _ map[string]interface{}) (interface{}, error) {
		name := factory.(string)
		if name == "factory:a" {
			return nil, errors.New("boom")
		}
		applied = append(applied, name)
		return nil, nil
	})

	assert.Equal(t, []string{"factory:b"}, applied)
}

func TestSearchDirsOrdering(t *testing.T) {
	cfg := Config{
		PeerModuleDir:         "/peer",
		PluginProbeLocations:  []string{"/probe1", "/probe2"},
		AllowLocalPluginLoads: true,
	}
	assert.Equal(t, []string{"/peer", "/probe1", "/probe2", "/ws"}, searchDirs(cfg, "/ws"))
}

func TestSearchDirsOmitsWorkspaceWhenNotAllowed(t *testing.T) {
	cfg := Config{PluginProbeLocations: []string{"/probe1"}}
	assert.Equal(t, []string{"/probe1"}, searchDirs(cfg, "/ws"))
}
