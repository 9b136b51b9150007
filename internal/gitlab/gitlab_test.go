package gitlab

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/cruxci/internal/catalog"
)

func render(t *testing.T, d *Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, d.Write(&buf))
	return buf.Bytes()
}

func TestDefaultCatalogDocument(t *testing.T) {
	cat := catalog.Default()
	out := render(t, FromDefinitions(cat.Definitions()))

	var parsed struct {
		Stages []string `yaml:"stages"`
	}
	require.NoError(t, yaml.Unmarshal(out, &parsed))
	assert.Equal(t, catalog.Stages, parsed.Stages)

	var nodes map[string]yaml.Node
	require.NoError(t, yaml.Unmarshal(out, &nodes))

	for _, def := range cat.Definitions() {
		node, ok := nodes[string(def.Name)]
		require.True(t, ok, "job %s missing", def.Name)
		var job Job
		require.NoError(t, node.Decode(&job))
		assert.Equal(t, def.Commands, job.Script)
		assert.Equal(t, def.Bootstrap, job.BeforeScript)
		assert.Equal(t, def.Stage, job.Stage)
		assert.Equal(t, def.Image, job.Image)
		assert.Equal(t, []Cache{
			{Key: catalog.VolumeVendor, Paths: []string{"vendor"}},
			{Key: catalog.VolumeNodeModules, Paths: []string{"node_modules"}},
		}, job.Cache)
	}
}

func TestDocumentKeyOrder(t *testing.T) {
	cat := catalog.Default()
	out := render(t, FromDefinitions(cat.Definitions()))

	var node yaml.Node
	require.NoError(t, yaml.Unmarshal(out, &node))
	require.Len(t, node.Content, 1)

	var keys []string
	mapping := node.Content[0]
	for i := 0; i < len(mapping.Content); i += 2 {
		keys = append(keys, mapping.Content[i].Value)
	}

	want := []string{"stages"}
	for _, e := range cat.List() {
		want = append(want, string(e.Name))
	}
	assert.Equal(t, want, keys)
}

func TestSubsetDocument(t *testing.T) {
	cat := catalog.Default()
	defs, err := cat.Resolve([]string{"unit-test", "template-lint", "unit-test"})
	require.NoError(t, err)

	d := FromDefinitions(defs)
	assert.Equal(t, []catalog.Name{catalog.UnitTest, catalog.TemplateLint}, d.Names)
	assert.Equal(t, []string{catalog.StageLint, catalog.StageTest}, d.Stages)
}

func TestJobFor(t *testing.T) {
	def := &catalog.Definition{
		Name:      "custom",
		Image:     "php:8.1",
		Workdir:   "/app",
		Bootstrap: []string{"apk add git"},
		Env:       map[string]string{"APP_ENV": "test"},
		Caches: []catalog.CacheMount{
			{Volume: "nix", Path: "/nix"},
			{Volume: "composer-vendor", Path: "/app/vendor/"},
			{Volume: "root", Path: "/app"},
		},
		Commands: []string{"composer test"},
	}

	job := jobFor(def)
	assert.Equal(t, defaultStage, job.Stage)
	assert.Equal(t, map[string]string{"APP_ENV": "test"}, job.Variables)
	assert.Equal(t, []Cache{{Key: "composer-vendor", Paths: []string{"vendor"}}}, job.Cache)

	d := FromDefinitions([]*catalog.Definition{def})
	assert.Equal(t, []string{defaultStage}, d.Stages)
}

func TestUnknownStagesFollowCatalogStages(t *testing.T) {
	defs := []*catalog.Definition{
		{Name: "deploy", Image: "alpine", Stage: "deploy", Commands: []string{"true"}},
		{Name: "lint", Image: "alpine", Stage: catalog.StageLint, Commands: []string{"true"}},
	}
	assert.Equal(t, []string{catalog.StageLint, "deploy"}, FromDefinitions(defs).Stages)
}
