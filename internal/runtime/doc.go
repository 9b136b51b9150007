// Package runtime manages job containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon, pulls base images by
// reference, and creates containers whose OCI spec carries the job's bind
// mounts, working directory and environment. Images are pulled once and
// unpacked into the snapshotter; later runs reuse the local copy.
//
// Each [Container] wraps a running containerd task. Commands are executed
// inside the container through the shell, and files are copied in as tar
// streams. When the job finishes the container is destroyed, releasing its
// snapshot and task resources. Only bind-mounted cache volumes outlive it.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "cruxci")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, runtime.ContainerSpec{
//	    ID:      "cruxci-unit-test-1a2b3c4d",
//	    Image:   "alpine:latest",
//	    Workdir: "/app",
//	    Mounts:  []runtime.Mount{{Source: "/var/cache/nix", Destination: "/nix"}},
//	})
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, runtime.ExecRequest{
//	    Shell:   "/bin/sh",
//	    Command: "echo hello",
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Print(result.Stdout)
package runtime
