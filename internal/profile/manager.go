// Package profile locates local browser profiles and snapshots them so a
// run can use a copy while the browser that owns the original stays open.
package profile

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// ErrNoProfile is returned when none of the candidate profile directories
// exist.
var ErrNoProfile = errors.New("no browser profile found")

// ErrNotFound is returned for an unknown snapshot ID.
var ErrNotFound = errors.New("snapshot not found")

// Locate returns the first candidate that is an existing directory.
func Locate(candidates []string) (string, error) {
	for _, dir := range candidates {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", ErrNoProfile
}

// skipped are files Chrome holds while running; copying them makes the copy
// look locked.
func skipped(name string) bool {
	return strings.HasPrefix(name, "Singleton") || name == "lockfile" || name == "LOCK"
}

// Manager handles profile snapshots
type Manager struct {
	snapshots sync.Map // snapshotID -> *models.ProfileSnapshot
	storePath string   // Base path for storing archives
}

// NewManager creates a new snapshot manager
func NewManager(storePath string) (*Manager, error) {
	if err := os.MkdirAll(storePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Manager{
		storePath: storePath,
	}, nil
}

// Snapshot compresses a profile directory into the store
func (m *Manager) Snapshot(source string) (*models.ProfileSnapshot, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat profile: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", source)
	}

	snap := &models.ProfileSnapshot{
		ID:        uuid.New().String(),
		Source:    source,
		CreatedAt: time.Now(),
	}
	snap.DataPath = filepath.Join(m.storePath, fmt.Sprintf("%s.tar.gz", snap.ID))

	if err := compressDirectory(source, snap.DataPath); err != nil {
		os.Remove(snap.DataPath)
		return nil, fmt.Errorf("failed to compress profile: %w", err)
	}

	m.snapshots.Store(snap.ID, snap)
	return snap, nil
}

// Get retrieves a snapshot by ID
func (m *Manager) Get(id string) (*models.ProfileSnapshot, error) {
	value, ok := m.snapshots.Load(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return value.(*models.ProfileSnapshot), nil
}

// Extract unpacks a snapshot into a fresh temporary directory
func (m *Manager) Extract(id string) (string, error) {
	snap, err := m.Get(id)
	if err != nil {
		return "", err
	}

	extractPath, err := os.MkdirTemp("", fmt.Sprintf("birdhouse-profile-%s-", snap.ID[:8]))
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	if err := extractDirectory(snap.DataPath, extractPath); err != nil {
		os.RemoveAll(extractPath)
		return "", fmt.Errorf("failed to extract profile: %w", err)
	}

	return extractPath, nil
}

// Delete removes a snapshot and its archive
func (m *Manager) Delete(id string) error {
	snap, err := m.Get(id)
	if err != nil {
		return err
	}

	if err := os.Remove(snap.DataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot data: %w", err)
	}

	m.snapshots.Delete(id)
	return nil
}

// compressDirectory creates a tar.gz archive of a directory
func compressDirectory(source, target string) (err error) {
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	gzWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzWriter)

	walkErr := filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if skipped(info.Name()) {
			return nil
		}
		// Sockets, symlinks and devices are not part of a usable profile copy.
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
	if walkErr != nil {
		return walkErr
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

// extractDirectory extracts a tar.gz archive to a directory
func extractDirectory(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	root := filepath.Clean(target) + string(os.PathSeparator)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(targetPath, root) {
			return fmt.Errorf("archive entry %q escapes the target directory", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return err
			}

			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0o777)
			if err != nil {
				return err
			}

			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			if err := outFile.Close(); err != nil {
				return err
			}
		}
	}

	return nil
}
