// Package upload stages the project snapshot in object storage.
//
// When the engine runs inside a remote session the container runtime cannot
// read the caller's working tree, so the snapshot is archived once, stored in
// an S3-compatible bucket, and every job streams it back from there. The
// returned [Remote] is itself a snapshot and plugs into the pipeline in place
// of the local directory:
//
//	up, err := upload.New(ctx, upload.Config{
//	    Bucket:   "ci-contexts",
//	    Endpoint: "http://minio:9000",
//	})
//	if err != nil {
//	    return err
//	}
//	remote, err := up.Upload(ctx, snap)
//
// Every failure is reported as [ErrUpload] and is fatal to the run.
package upload
