package snapshot

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Writes the directory tree to w as a tar stream.
func (d *Directory) Archive(ctx context.Context, w io.Writer) error {
	tw := tar.NewWriter(w)

	if err := d.writeTree(ctx, tw); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	return nil
}

// Walks the root, writing every entry that is not excluded.
func (d *Directory) writeTree(ctx context.Context, tw *tar.Writer) error {
	return filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		archivePath := filepath.ToSlash(rel)
		if d.excluded(archivePath) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !archivable(entry.Type()) {
			slog.Debug("snapshot entry skipped", "path", archivePath, "type", entry.Type().String())
			return nil
		}

		return writeTarEntry(tw, path, archivePath, entry)
	})
}

// Reports whether an entry of the given type can be carried in a snapshot.
// Sockets, FIFOs and device nodes are runtime artifacts and are left out.
func archivable(t fs.FileMode) bool {
	return t.IsRegular() || t.IsDir() || t&fs.ModeSymlink != 0
}

// Writes a single file, directory or symlink entry to a tar writer.
func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, entry fs.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(hostPath); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = archivePath
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(hostPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}

	return nil
}
