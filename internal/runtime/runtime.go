package runtime

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/distribution/reference"
)

const (

	// Snapshotter used for container filesystems. fuse-overlayfs provides
	// overlay semantics without requiring root privileges (no mount(2)),
	// allowing cruxci to run as a regular user.
	snapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Describes a container to start.
type ContainerSpec struct {
	ID       string   // Unique containerd container ID.
	Image    string   // Image reference (e.g., "alpine:latest"), normalised to a fully qualified name.
	Platform string   // OCI platform (e.g., "linux/amd64"). Empty uses the host platform.
	Mounts   []Mount  // Bind mounts added to the OCI spec.
	Env      []string // Environment in "key=value" form, applied to every process.
	Workdir  string   // Working directory of every process. Empty keeps the image default.
}

// A host directory bind-mounted into a container.
type Mount struct {
	Source      string // Absolute host path.
	Destination string // Absolute path inside the container.
	ReadOnly    bool   // Whether the mount is read-only.
}

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client *containerd.Client // Containerd client for managing containers and images.
}

// Creates a runtime connected to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. The
// runtime must be closed when no longer needed.
func New(address, namespace string) (*Runtime, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return &Runtime{client: client}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Pulls the spec's image if needed and starts a container from it.
//
// The image is looked up locally first and pulled from its registry only
// when absent. Layers for the target platform are unpacked into the
// snapshotter, a container is created with a fresh snapshot and the spec's
// mounts, environment and working directory, and a long-running task (sleep
// infinity) is started so that subsequent Exec calls have a running process
// to attach to. Any existing container with the same ID is removed first.
func (rt *Runtime) StartContainer(ctx context.Context, spec ContainerSpec) (*Container, error) {
	platform := spec.Platform
	if platform == "" {
		platform = defaultPlatform()
	}

	ref, err := normalizeRef(spec.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImage, err)
	}

	if err := rt.ensureImage(ctx, ref, platform); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImage, ref, err)
	}

	c := &Container{
		client:   rt.client,
		id:       spec.ID,
		platform: platform,
	}

	// Remove any stale container from a previous run with the same ID.
	c.remove(ctx)

	image, err := rt.resolveImage(ctx, ref, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImage, err)
	}

	ctr, err := c.create(ctx, image, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container started", "id", spec.ID, "image", ref, "mounts", len(spec.Mounts))

	return c, nil
}

// Makes sure the image is present in the content store and unpacked for the
// target platform.
//
// Images already known to containerd are not pulled again, so repeated runs
// work offline once the base image has been fetched.
func (rt *Runtime) ensureImage(ctx context.Context, ref, platform string) error {
	_, err := rt.client.ImageService().Get(ctx, ref)
	if err == nil {
		return rt.unpackImage(ctx, ref, platform)
	}
	if !errdefs.IsNotFound(err) {
		return err
	}

	slog.Info("pulling image", "image", ref, "platform", platform)

	_, err = rt.client.Pull(ctx, ref,
		containerd.WithPlatform(platform),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
	)
	return err
}

// Unpacks the image layers for the target platform into the snapshotter,
// unless they already are.
func (rt *Runtime) unpackImage(ctx context.Context, ref, platform string) error {
	image, err := rt.resolveImage(ctx, ref, platform)
	if err != nil {
		return err
	}

	unpacked, err := image.IsUnpacked(ctx, snapshotter)
	if err != nil {
		return err
	}
	if unpacked {
		return nil
	}

	return image.Unpack(ctx, snapshotter)
}

// Looks up an image and selects the manifest for the given platform.
//
// Multi-platform images contain manifests for multiple architectures. This
// method selects one, so that subsequent operations target the correct
// architecture.
func (rt *Runtime) resolveImage(ctx context.Context, ref, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlatform, err)
	}

	img, err := rt.client.ImageService().Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Expands a short image reference such as "alpine:latest" into the fully
// qualified form containerd stores ("docker.io/library/alpine:latest").
func normalizeRef(ref string) (string, error) {
	named, err := reference.ParseDockerRef(ref)
	if err != nil {
		return "", err
	}
	return named.String(), nil
}

// Returns the default OCI platform for the host architecture.
func defaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}
