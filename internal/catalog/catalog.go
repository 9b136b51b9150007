package catalog

import (
	"errors"
	"fmt"
	"slices"
)

// Identifies a job in the catalog.
type Name string

const (
	StyleCheck           Name = "style-check"
	StaticAnalysis       Name = "static-analysis"
	TemplateLint         Name = "template-lint"
	ConfigFormatLint     Name = "config-format-lint"
	TranslationLint      Name = "translation-lint"
	DependencyGraphLint  Name = "dependency-graph-lint"
	SchemaValidationLint Name = "schema-validation-lint"
	UnitTest             Name = "unit-test"
)

var (
	ErrInvalidDefinition = errors.New("invalid job definition")
	ErrDuplicateJob      = errors.New("duplicate job")
)

// Binds a logical cache volume to a path inside the job's container.
type CacheMount struct {
	Volume string // Logical volume name, resolved by the cache registry.
	Path   string // Absolute mount path inside the container.
}

// Declarative description of one verification job.
//
// Definitions are values: the pipeline reads them but never modifies them.
type Definition struct {
	Name        Name              // Unique job name.
	Description string            // Human-readable summary shown by discovery commands.
	Stage       string            // Stage the job belongs to in generated CI documents.
	Image       string            // Base image reference.
	Bootstrap   []string          // Commands that make the toolchain usable, run before the project is copied in.
	Caches      []CacheMount      // Cache volumes mounted for the whole job, in mount order.
	Workdir     string            // Working directory; the project snapshot is copied here.
	Env         map[string]string // Environment for bootstrap and job commands.
	Commands    []string          // Job commands, run in order, stopping at the first failure.
}

// Checks that a definition can be executed.
func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDefinition)
	}
	if d.Image == "" {
		return fmt.Errorf("%w: %s: missing image", ErrInvalidDefinition, d.Name)
	}
	if len(d.Commands) == 0 {
		return fmt.Errorf("%w: %s: no commands", ErrInvalidDefinition, d.Name)
	}
	for _, m := range d.Caches {
		if m.Volume == "" || m.Path == "" {
			return fmt.Errorf("%w: %s: incomplete cache mount %+v", ErrInvalidDefinition, d.Name, m)
		}
	}
	return nil
}

// Name and description of a catalog entry.
type Entry struct {
	Name        Name
	Description string
}

// Fixed mapping from job name to definition, plus the default run order.
//
// A Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	order    []Name
	defs     map[Name]*Definition
	defaults []Name
}

// Creates a catalog from definitions and a default sequence.
//
// Definitions keep their declaration order for listing. Every definition
// must have a name, an image and at least one command; every name in the
// default sequence must be declared.
func New(defs []Definition, defaultSequence []Name) (*Catalog, error) {
	c := &Catalog{
		order: make([]Name, 0, len(defs)),
		defs:  make(map[Name]*Definition, len(defs)),
	}

	for i := range defs {
		def := defs[i]
		if err := def.validate(); err != nil {
			return nil, err
		}
		if _, ok := c.defs[def.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, def.Name)
		}
		c.order = append(c.order, def.Name)
		c.defs[def.Name] = &def
	}

	for _, name := range defaultSequence {
		if _, ok := c.defs[name]; !ok {
			return nil, &JobNotFoundError{Name: string(name)}
		}
	}
	c.defaults = slices.Clone(defaultSequence)

	return c, nil
}

// Returns the definition for name, or a [JobNotFoundError].
//
// The returned definition is shared and must not be modified.
func (c *Catalog) Lookup(name Name) (*Definition, error) {
	def, ok := c.defs[name]
	if !ok {
		return nil, &JobNotFoundError{Name: string(name)}
	}
	return def, nil
}

// Returns every job's name and description in declaration order.
func (c *Catalog) List() []Entry {
	entries := make([]Entry, 0, len(c.order))
	for _, name := range c.order {
		entries = append(entries, Entry{Name: name, Description: c.defs[name].Description})
	}
	return entries
}

// Returns every definition in declaration order.
func (c *Catalog) Definitions() []*Definition {
	defs := make([]*Definition, 0, len(c.order))
	for _, name := range c.order {
		defs = append(defs, c.defs[name])
	}
	return defs
}

// Returns the names run when no job is requested explicitly.
func (c *Catalog) DefaultSequence() []Name {
	return slices.Clone(c.defaults)
}

// Resolves a run request into definitions.
//
// An empty request resolves to the default sequence. Otherwise each name is
// looked up in the order given, duplicates included. The first unknown name
// fails the whole request, so nothing is returned for a partially valid one.
func (c *Catalog) Resolve(names []string) ([]*Definition, error) {
	requested := c.defaults
	if len(names) > 0 {
		requested = make([]Name, len(names))
		for i, n := range names {
			requested[i] = Name(n)
		}
	}

	defs := make([]*Definition, 0, len(requested))
	for _, name := range requested {
		def, err := c.Lookup(name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
