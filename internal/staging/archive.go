package staging

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Compress produces a gzip tar of the staged subtree, with member paths
// rooted at the staged base name so extraction recreates the same
// top-level directory. The archive becomes the workspace's current
// artifact; its name is renameTo, or <base>.tgz when empty.
func (w *Workspace) Compress(renameTo string) (string, error) {
	if w.name == "" {
		return "", errors.New("compress: nothing staged")
	}
	staged := w.path

	tarName := renameTo
	if tarName == "" {
		tarName = w.name + ".tgz"
	}
	tarPath := filepath.Join(w.root, tarName)

	out, err := os.Create(tarPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	walkErr := filepath.Walk(staged, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staged, p)
		if err != nil {
			return err
		}
		return writeTarEntry(tw, p, path.Join(w.name, filepath.ToSlash(rel)), info)
	})

	if err := closeAll(walkErr, tw, gw, out); err != nil {
		_ = os.Remove(tarPath)
		return "", fmt.Errorf("write archive: %w", err)
	}

	w.path = tarPath
	return tarPath, nil
}

func writeTarEntry(tw *tar.Writer, p, name string, info os.FileInfo) error {
	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		var err error
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(tw, f)
	return err
}

// closeAll flushes the tar/gzip/file stack in order, keeping the first
// error seen.
func closeAll(err error, closers ...io.Closer) error {
	for _, c := range closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Extract unpacks a gzip tar archive into destDir, restoring files,
// directories and symbolic links with their recorded modes. Entry names
// are sanitised so the archive cannot escape destDir.
func Extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", archivePath, err)
	}
	defer func() { _ = gr.Close() }()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read archive %s: %w", archivePath, err)
		}
		if err := extractEntry(tr, hdr, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, destDir string) error {
	name := cleanEntryName(hdr.Name)
	if name == "" {
		return nil
	}
	dst := filepath.Join(destDir, filepath.FromSlash(name))

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dst, os.FileMode(hdr.Mode).Perm())
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		_ = os.Remove(dst)
		return os.Symlink(hdr.Linkname, dst)
	default:
		return nil
	}
}

// cleanEntryName normalises a tar member name and rejects anything that
// would resolve outside the extraction root.
func cleanEntryName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = path.Clean(name)
	name = strings.TrimLeft(name, "/")
	if name == "" || name == "." || strings.HasPrefix(name, "..") {
		return ""
	}
	return name
}
