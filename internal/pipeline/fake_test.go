package pipeline

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/cruxci/internal/cache"
	"github.com/cruciblehq/cruxci/internal/catalog"
	"github.com/cruciblehq/cruxci/internal/snapshot"
)

// Scripted outcome for commands containing a substring.
type fakeOutcome struct {
	exitCode int
	stdout   string
	stderr   string
	err      error
}

// Provider simulating environments in memory.
//
// Commands succeed and print "ran <line>" unless an outcome matches. Two
// built-in commands touch mounted volumes on the host:
//
//	write-marker <path> <text>   writes text to path
//	read-marker <path>           prints the file, exit 1 if missing
type fakeProvider struct {
	mu       sync.Mutex
	startErr error
	copyErr  error
	outcomes map[string]fakeOutcome
	envs     []*fakeEnv
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{outcomes: make(map[string]fakeOutcome)}
}

// Scripts the outcome of every command containing substr.
func (p *fakeProvider) on(substr string, o fakeOutcome) *fakeProvider {
	p.outcomes[substr] = o
	return p
}

func (p *fakeProvider) Start(_ context.Context, spec EnvironmentSpec) (Environment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return nil, p.startErr
	}
	env := &fakeEnv{provider: p, spec: spec, copied: make(map[string][]string)}
	p.envs = append(p.envs, env)
	return env, nil
}

// Returns the number of environments started.
func (p *fakeProvider) starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envs)
}

// Returns every executed command line across environments.
func (p *fakeProvider) executed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var lines []string
	for _, e := range p.envs {
		for _, c := range e.commands {
			lines = append(lines, c.Line)
		}
	}
	return lines
}

type fakeEnv struct {
	provider  *fakeProvider
	spec      EnvironmentSpec
	commands  []Command
	copied    map[string][]string // Destination to archived entry names.
	destroyed bool
}

func (e *fakeEnv) Exec(ctx context.Context, cmd Command) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.commands = append(e.commands, cmd)

	fields := strings.Fields(cmd.Line)
	switch {
	case len(fields) >= 3 && fields[0] == "write-marker":
		host, err := e.hostPath(fields[1])
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(host, []byte(strings.Join(fields[2:], " ")), 0o644); err != nil {
			return nil, err
		}
		return &Output{}, nil

	case len(fields) == 2 && fields[0] == "read-marker":
		host, err := e.hostPath(fields[1])
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(host)
		if err != nil {
			return &Output{ExitCode: 1, Stderr: err.Error()}, nil
		}
		return &Output{Stdout: string(data)}, nil
	}

	for substr, o := range e.provider.outcomes {
		if strings.Contains(cmd.Line, substr) {
			if o.err != nil {
				return nil, o.err
			}
			return &Output{ExitCode: o.exitCode, Stdout: o.stdout, Stderr: o.stderr}, nil
		}
	}

	return &Output{Stdout: "ran " + cmd.Line + "\n"}, nil
}

// Maps a path inside the environment to the host directory of its mount.
func (e *fakeEnv) hostPath(path string) (string, error) {
	for _, m := range e.spec.Mounts {
		if rel, ok := strings.CutPrefix(path, m.Path+"/"); ok {
			return filepath.Join(m.Source, rel), nil
		}
	}
	return "", errors.New("path not on a mounted volume: " + path)
}

// Streams the snapshot the way the containerd adapter does and records the
// archived entry names. A stream error surfaces even after the tar trailer.
func (e *fakeEnv) CopyTree(ctx context.Context, dest string, snap snapshot.Snapshot) error {
	if e.provider.copyErr != nil {
		return e.provider.copyErr
	}
	rc := snapshot.Open(ctx, snap)
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		e.copied[dest] = append(e.copied[dest], hdr.Name)
	}
	_, err := io.Copy(io.Discard, rc)
	return err
}

// Snapshot that writes part of an archive and then fails.
type brokenSnapshot struct {
	err error
}

func (s brokenSnapshot) Archive(_ context.Context, w io.Writer) error {
	tw := tar.NewWriter(w)
	if err := tw.WriteHeader(&tar.Header{Name: "composer.json", Mode: 0o644, Size: 2}); err != nil {
		return err
	}
	if _, err := tw.Write([]byte("{}")); err != nil {
		return err
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return s.err
}

func (s brokenSnapshot) String() string { return "broken" }

func (e *fakeEnv) Destroy(context.Context) {
	e.destroyed = true
}

// Returns a snapshot of a temporary project with one file.
func testSnapshot(t *testing.T) snapshot.Snapshot {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "composer.json"), []byte("{}"), 0o644))
	snap, err := snapshot.Dir(root)
	require.NoError(t, err)
	return snap
}

// Returns a definition running commands in /app with one exclusive cache.
func testDefinition(name catalog.Name, commands ...string) catalog.Definition {
	return catalog.Definition{
		Name:      name,
		Image:     "alpine:latest",
		Bootstrap: []string{"apk add bash"},
		Caches: []catalog.CacheMount{
			{Volume: catalog.VolumeVendor, Path: "/app/vendor"},
			{Volume: catalog.VolumeNix, Path: "/nix"},
		},
		Workdir:  "/app",
		Env:      map[string]string{"APP_ENV": "test"},
		Commands: commands,
	}
}

// Returns a builder over p with a fresh registry declaring the vendor cache
// exclusive.
func testBuilder(t *testing.T, p Provider) (*Builder, *cache.Registry) {
	t.Helper()
	reg := cache.NewRegistry(t.TempDir())
	require.NoError(t, reg.Declare(catalog.VolumeVendor, cache.Exclusive))
	return NewBuilder(p, reg), reg
}
