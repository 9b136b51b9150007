package gitlab

import (
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/cruxci/internal/catalog"
)

// Stage assigned to definitions that do not name one. Matches GitLab's own
// default.
const defaultStage = "test"

// A GitLab CI job.
type Job struct {
	Image        string            `yaml:"image"`
	Stage        string            `yaml:"stage"`
	Variables    map[string]string `yaml:"variables,omitempty"`
	Cache        []Cache           `yaml:"cache,omitempty"`
	BeforeScript []string          `yaml:"before_script,omitempty"`
	Script       []string          `yaml:"script"`
}

// A GitLab cache entry.
type Cache struct {
	Key   string   `yaml:"key"`
	Paths []string `yaml:"paths"`
}

// A complete .gitlab-ci.yml.
//
// Jobs keep the order they were given in; encoding a Document writes the
// stages first and then one top-level key per job.
type Document struct {
	Stages []string
	Names  []catalog.Name
	Jobs   map[catalog.Name]Job
}

// Builds a document from definitions.
//
// Stages are listed in the catalog's stage order, restricted to those the
// definitions use; unknown stages follow in first-use order.
func FromDefinitions(defs []*catalog.Definition) *Document {
	d := &Document{Jobs: make(map[catalog.Name]Job, len(defs))}

	used := make(map[string]bool)
	var extra []string

	for _, def := range defs {
		if _, ok := d.Jobs[def.Name]; ok {
			continue
		}
		job := jobFor(def)
		d.Names = append(d.Names, def.Name)
		d.Jobs[def.Name] = job

		if !used[job.Stage] && !slices.Contains(catalog.Stages, job.Stage) {
			extra = append(extra, job.Stage)
		}
		used[job.Stage] = true
	}

	for _, s := range catalog.Stages {
		if used[s] {
			d.Stages = append(d.Stages, s)
		}
	}
	d.Stages = append(d.Stages, extra...)

	return d
}

// Converts a definition to a GitLab job.
func jobFor(def *catalog.Definition) Job {
	job := Job{
		Image:        def.Image,
		Stage:        def.Stage,
		BeforeScript: slices.Clone(def.Bootstrap),
		Script:       slices.Clone(def.Commands),
	}
	if job.Stage == "" {
		job.Stage = defaultStage
	}
	if len(def.Env) > 0 {
		job.Variables = def.Env
	}

	for _, m := range def.Caches {
		rel, ok := projectRelative(def.Workdir, m.Path)
		if !ok {
			continue
		}
		job.Cache = append(job.Cache, Cache{Key: m.Volume, Paths: []string{rel}})
	}

	return job
}

// Returns p relative to root when p lies strictly inside root.
func projectRelative(root, p string) (string, bool) {
	if root == "" {
		return "", false
	}
	rel, ok := strings.CutPrefix(path.Clean(p), path.Clean(root)+"/")
	return rel, ok && rel != ""
}

// Encodes the document as an ordered YAML mapping.
func (d *Document) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	stages := &yaml.Node{}
	if err := stages.Encode(d.Stages); err != nil {
		return nil, err
	}
	root.Content = append(root.Content, scalar("stages"), stages)

	for _, name := range d.Names {
		job := &yaml.Node{}
		if err := job.Encode(d.Jobs[name]); err != nil {
			return nil, fmt.Errorf("job %s: %w", name, err)
		}
		root.Content = append(root.Content, scalar(string(name)), job)
	}

	return root, nil
}

// Writes the document as YAML.
func (d *Document) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}
