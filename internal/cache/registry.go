package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Default permission mode for volume directories. Containers may run as
// unprivileged users that still need to write into the mount.
const volumeDirMode os.FileMode = 0o777

// Logical names double as directory names, so they are restricted to a
// portable character set.
var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// How a volume may be used by concurrent consumers.
type Mode int

const (
	Shared    Mode = iota // Any number of jobs may mount the volume at once.
	Exclusive             // One job at a time; consumers take the volume lock.
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// A persistent cache volume.
type Volume struct {
	Name   string // Logical name.
	Handle string // Absolute host directory backing the volume.
	Mode   Mode   // Sharing mode.

	mu sync.Mutex // Held by the job using an exclusive volume.
}

// Acquires the volume for the calling job. No-op for shared volumes.
func (v *Volume) Lock() {
	if v.Mode == Exclusive {
		v.mu.Lock()
	}
}

// Releases a volume acquired with [Volume.Lock].
func (v *Volume) Unlock() {
	if v.Mode == Exclusive {
		v.mu.Unlock()
	}
}

// Maps logical cache names to volumes under a root directory.
//
// Resolution is idempotent and safe for concurrent use: concurrent first
// requests for the same name create the volume once and share the result.
type Registry struct {
	root    string
	mu      sync.RWMutex
	modes   map[string]Mode
	volumes map[string]*Volume
	group   singleflight.Group
}

// Creates a registry storing volumes under root. Nothing is created on disk
// until a volume is first resolved.
func NewRegistry(root string) *Registry {
	return &Registry{
		root:    root,
		modes:   make(map[string]Mode),
		volumes: make(map[string]*Volume),
	}
}

// Returns the directory holding the registry's volumes.
func (r *Registry) Root() string {
	return r.root
}

// Sets the sharing mode of a volume ahead of its first use.
//
// Undeclared volumes are shared. Redeclaring a volume with the same mode is
// allowed; changing the mode of a volume that has already been resolved is
// an error.
func (r *Registry) Declare(name string, mode Mode) error {
	if err := checkName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.volumes[name]; ok && v.Mode != mode {
		return fmt.Errorf("%w: %s already resolved as %s", ErrVolume, name, v.Mode)
	}
	r.modes[name] = mode
	return nil
}

// Returns the volume for a logical name, creating its directory on first
// use.
//
// Every call with the same name returns the same *Volume for the lifetime of
// the registry, and the same host directory for the lifetime of the root.
func (r *Registry) Volume(name string) (*Volume, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	if v := r.lookup(name); v != nil {
		return v, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		if v := r.lookup(name); v != nil {
			return v, nil
		}
		return r.create(name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Volume), nil
}

// Returns every volume resolved so far, sorted by name.
func (r *Registry) List() []*Volume {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vols := make([]*Volume, 0, len(r.volumes))
	for _, v := range r.volumes {
		vols = append(vols, v)
	}
	slices.SortFunc(vols, func(a, b *Volume) int {
		return strings.Compare(a.Name, b.Name)
	})
	return vols
}

func (r *Registry) lookup(name string) *Volume {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.volumes[name]
}

// Creates the volume directory and records the volume.
func (r *Registry) create(name string) (*Volume, error) {
	handle, err := filepath.Abs(filepath.Join(r.root, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrVolume, name, err)
	}

	_, statErr := os.Stat(handle)
	if err := os.MkdirAll(handle, volumeDirMode); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrVolume, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v := &Volume{Name: name, Handle: handle, Mode: r.modes[name]}
	r.volumes[name] = v

	slog.Debug("cache volume resolved",
		"volume", name,
		"handle", handle,
		"mode", v.Mode.String(),
		"created", os.IsNotExist(statErr),
	)
	return v, nil
}

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
