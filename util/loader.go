package util

import (
	"os"
	"path/filepath"
	"sort"
)

// ImageFile represents an image file found on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Name is the base name of the image file.
	Name string
}

// LoadDirectoryImageFiles lists the image files of a directory.
//
// Arguments:
// - dir: Directory path containing image files.
// - allowed: Lower-case extensions without the dot.
//
// Returns:
// - []ImageFile: Files with an allowed extension, sorted by name.
// - error: Error if the directory cannot be read.
func LoadDirectoryImageFiles(dir string, allowed []string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !AllowedFile(entry.Name(), allowed) {
			continue
		}
		files = append(files, ImageFile{
			Path: filepath.Join(dir, entry.Name()),
			Name: entry.Name(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	return files, nil
}
