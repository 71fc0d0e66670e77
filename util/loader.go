// Package util - File helpers for batch scanning.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Name is the file name without its extension, used as the scan ID.
	Name string
}

// IsImageFile reports whether the path has a supported photo extension.
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	default:
		return false
	}
}

// LoadImageFile reads a single image file.
func LoadImageFile(path string) (ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, err
	}
	base := filepath.Base(path)
	return ImageFile{
		Path: path,
		Data: data,
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
	}, nil
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The image files sorted by name. Subdirectories and other files are skipped.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		file, err := LoadImageFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}
