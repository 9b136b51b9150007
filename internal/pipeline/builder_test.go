package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/cruxci/internal/cache"
	"github.com/cruciblehq/cruxci/internal/catalog"
)

func TestBuildConstructsEnvironment(t *testing.T) {
	p := newFakeProvider()
	b, reg := testBuilder(t, p)
	def := testDefinition("lint", "phpcs")

	h, err := b.Build(context.Background(), &def, testSnapshot(t))
	require.NoError(t, err)
	defer h.Release(context.Background())

	require.Len(t, p.envs, 1)
	env := p.envs[0]

	assert.True(t, strings.HasPrefix(env.spec.ID, "cruxci-lint-"))
	assert.Equal(t, "alpine:latest", env.spec.Image)
	assert.Equal(t, "/app", env.spec.Workdir)
	assert.Equal(t, map[string]string{"APP_ENV": "test"}, env.spec.Env)

	vendor, err := reg.Volume(catalog.VolumeVendor)
	require.NoError(t, err)
	nix, err := reg.Volume(catalog.VolumeNix)
	require.NoError(t, err)
	assert.Equal(t, []Mount{
		{Source: vendor.Handle, Path: "/app/vendor"},
		{Source: nix.Handle, Path: "/nix"},
	}, env.spec.Mounts)

	require.Len(t, env.commands, 1, "only bootstrap runs during build")
	assert.Equal(t, "apk add bash", env.commands[0].Line)
	assert.Equal(t, "/", env.commands[0].Workdir)
	assert.Equal(t, defaultShell, env.commands[0].Shell)
	assert.Equal(t, []string{"APP_ENV=test"}, env.commands[0].Env)

	assert.Equal(t, []string{"composer.json"}, env.copied["/app"])
	assert.Equal(t, catalog.Name("lint"), h.Job())
}

func TestRunCommandsInOrder(t *testing.T) {
	p := newFakeProvider()
	b, _ := testBuilder(t, p)
	def := testDefinition("lint", "step-a", "step-b", "step-c")

	res := b.Execute(context.Background(), &def, testSnapshot(t))

	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Commands)
	assert.Equal(t, "ran step-a\nran step-b\nran step-c\n", res.Output)
	assert.Equal(t, []string{"apk add bash", "step-a", "step-b", "step-c"}, p.executed())

	env := p.envs[0]
	assert.True(t, env.destroyed)
	for _, c := range env.commands[1:] {
		assert.Equal(t, "/app", c.Workdir)
	}
}

func TestRunStopsAtFirstFailingCommand(t *testing.T) {
	p := newFakeProvider().on("step-b", fakeOutcome{
		exitCode: 2,
		stdout:   "partial b\n",
		stderr:   "b exploded\n",
	})
	b, _ := testBuilder(t, p)
	def := testDefinition("lint", "step-a", "step-b", "step-c")

	res := b.Execute(context.Background(), &def, testSnapshot(t))

	assert.False(t, res.OK())
	assert.Equal(t, 2, res.Commands)
	assert.Equal(t, "ran step-a\npartial b\nb exploded\n", res.Output)
	assert.NotContains(t, p.executed(), "step-c")

	var cmdErr *CommandError
	require.ErrorAs(t, res.Err, &cmdErr)
	assert.Equal(t, 2, cmdErr.ExitCode)
	assert.Equal(t, "step-b", cmdErr.Command)
	assert.Equal(t, "partial b\nb exploded\n", cmdErr.Output)
	assert.ErrorIs(t, res.Err, ErrCommand)
	assert.True(t, p.envs[0].destroyed)
}

func TestRunProviderFailure(t *testing.T) {
	boom := errors.New("task vanished")
	p := newFakeProvider().on("step-b", fakeOutcome{err: boom})
	b, _ := testBuilder(t, p)
	def := testDefinition("lint", "step-a", "step-b", "step-c")

	res := b.Execute(context.Background(), &def, testSnapshot(t))

	assert.ErrorIs(t, res.Err, ErrProvider)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, "ran step-a\n", res.Output)
	assert.NotContains(t, p.executed(), "step-c")
}

func TestBuildFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		setup     func(p *fakeProvider)
		def       func() catalog.Definition
		step      string
		started   bool
		wantCause error
	}{
		{
			name:      "image unavailable",
			setup:     func(p *fakeProvider) { p.startErr = boom },
			def:       func() catalog.Definition { return testDefinition("lint", "step-a") },
			step:      "start",
			wantCause: boom,
		},
		{
			name: "bootstrap exits non-zero",
			setup: func(p *fakeProvider) {
				p.on("apk add", fakeOutcome{exitCode: 1, stderr: "no network"})
			},
			def:       func() catalog.Definition { return testDefinition("lint", "step-a") },
			step:      "bootstrap",
			started:   true,
			wantCause: ErrCommand,
		},
		{
			name:      "bootstrap provider failure",
			setup:     func(p *fakeProvider) { p.on("apk add", fakeOutcome{err: boom}) },
			def:       func() catalog.Definition { return testDefinition("lint", "step-a") },
			step:      "bootstrap",
			started:   true,
			wantCause: boom,
		},
		{
			name:      "copy fails",
			setup:     func(p *fakeProvider) { p.copyErr = boom },
			def:       func() catalog.Definition { return testDefinition("lint", "step-a") },
			step:      "copy",
			started:   true,
			wantCause: boom,
		},
		{
			name:  "invalid volume",
			setup: func(*fakeProvider) {},
			def: func() catalog.Definition {
				d := testDefinition("lint", "step-a")
				d.Caches = []catalog.CacheMount{{Volume: "../escape", Path: "/x"}}
				return d
			},
			step:      "volumes",
			wantCause: cache.ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			tt.setup(p)
			b, _ := testBuilder(t, p)
			def := tt.def()

			res := b.Execute(context.Background(), &def, testSnapshot(t))

			var buildErr *EnvironmentBuildError
			require.ErrorAs(t, res.Err, &buildErr)
			assert.Equal(t, tt.step, buildErr.Step)
			assert.Equal(t, def.Name, buildErr.Job)
			assert.ErrorIs(t, res.Err, ErrEnvironmentBuild)
			assert.ErrorIs(t, res.Err, tt.wantCause)
			assert.Zero(t, res.Commands)
			assert.NotContains(t, p.executed(), "step-a")

			if tt.started {
				require.Len(t, p.envs, 1)
				assert.True(t, p.envs[0].destroyed)
			} else {
				assert.Empty(t, p.envs)
			}
		})
	}
}

func TestBuildFailsWhenSnapshotStreamBreaks(t *testing.T) {
	boom := errors.New("archive/tar: sockets not supported")
	p := newFakeProvider()
	b, reg := testBuilder(t, p)
	def := testDefinition("lint", "step-a")

	done := make(chan JobResult, 1)
	go func() { done <- b.Execute(context.Background(), &def, brokenSnapshot{err: boom}) }()

	var res JobResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job hung on a broken snapshot stream")
	}

	var buildErr *EnvironmentBuildError
	require.ErrorAs(t, res.Err, &buildErr)
	assert.Equal(t, "copy", buildErr.Step)
	assert.ErrorIs(t, res.Err, boom)
	assert.NotContains(t, p.executed(), "step-a")

	require.Len(t, p.envs, 1)
	assert.True(t, p.envs[0].destroyed)

	vendor, err := reg.Volume(catalog.VolumeVendor)
	require.NoError(t, err)
	assert.True(t, lockable(vendor))
}

func TestBootstrapFailureOutput(t *testing.T) {
	p := newFakeProvider().on("apk add", fakeOutcome{exitCode: 1, stderr: "ERROR: unable to select packages"})
	b, _ := testBuilder(t, p)
	def := testDefinition("lint", "step-a")

	res := b.Execute(context.Background(), &def, testSnapshot(t))
	assert.Contains(t, res.Output, "unable to select packages")
}

// Reports whether v can be locked within a short delay.
func lockable(v *cache.Volume) bool {
	done := make(chan struct{})
	go func() {
		v.Lock()
		v.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestExclusiveVolumeHeldDuringJob(t *testing.T) {
	p := newFakeProvider()
	b, reg := testBuilder(t, p)
	def := testDefinition("lint", "step-a")

	vendor, err := reg.Volume(catalog.VolumeVendor)
	require.NoError(t, err)

	h, err := b.Build(context.Background(), &def, testSnapshot(t))
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		vendor.Lock()
		vendor.Unlock()
		close(released)
	}()
	select {
	case <-released:
		t.Fatal("exclusive volume available while its job runs")
	case <-time.After(50 * time.Millisecond):
	}

	res := b.Run(context.Background(), h)
	require.NoError(t, res.Err)
	<-released
}

func TestExclusiveVolumeReleasedAfterFailure(t *testing.T) {
	p := newFakeProvider().on("step-a", fakeOutcome{exitCode: 1})
	b, reg := testBuilder(t, p)
	def := testDefinition("lint", "step-a")

	res := b.Execute(context.Background(), &def, testSnapshot(t))
	require.Error(t, res.Err)

	vendor, err := reg.Volume(catalog.VolumeVendor)
	require.NoError(t, err)
	assert.True(t, lockable(vendor))
}

func TestCacheVolumeSharedAcrossJobsAndRuns(t *testing.T) {
	root := t.TempDir()
	snap := testSnapshot(t)

	writer := testDefinition("install", "write-marker /app/vendor/marker installed-once")
	reader := testDefinition("check", "read-marker /app/vendor/marker")

	p := newFakeProvider()
	b := NewBuilder(p, cache.NewRegistry(root))

	res := b.Execute(context.Background(), &writer, snap)
	require.NoError(t, res.Err)

	res = b.Execute(context.Background(), &reader, snap)
	require.NoError(t, res.Err)
	assert.Equal(t, "installed-once", res.Output)

	// A later run on the same host uses a new registry over the same root.
	next := NewBuilder(newFakeProvider(), cache.NewRegistry(root))
	res = next.Execute(context.Background(), &reader, snap)
	require.NoError(t, res.Err)
	assert.Equal(t, "installed-once", res.Output)

	data, err := os.ReadFile(filepath.Join(root, catalog.VolumeVendor, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "installed-once", string(data))
}

func TestBuilderOptions(t *testing.T) {
	p := newFakeProvider()
	var live strings.Builder
	b := NewBuilder(p, cache.NewRegistry(t.TempDir()), WithShell("/bin/bash"), WithLiveOutput(&live))
	def := testDefinition("lint", "step-a")

	res := b.Execute(context.Background(), &def, testSnapshot(t))
	require.NoError(t, res.Err)

	for _, c := range p.envs[0].commands {
		assert.Equal(t, "/bin/bash", c.Shell)
		assert.Same(t, &live, c.Live)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	p := newFakeProvider()
	b, _ := testBuilder(t, p)
	def := testDefinition("lint", "step-a")

	h, err := b.Build(context.Background(), &def, testSnapshot(t))
	require.NoError(t, err)

	h.Release(context.Background())
	h.Release(context.Background())
	assert.True(t, p.envs[0].destroyed)
}
