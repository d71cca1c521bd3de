// Package images - Image decoding and preprocessing for the tumor classifiers.
package images

import (
	"path/filepath"
	"strings"
)

// ImageFormat represents supported upload formats.
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatDICOM is the DICOM medical image format.
	FormatDICOM ImageFormat = "dicom"
	// FormatUnknown is returned for extensions outside the supported set.
	FormatUnknown ImageFormat = ""
)

// extensionFormats maps lower-case extensions (without the dot) to formats.
var extensionFormats = map[string]ImageFormat{
	"png":   FormatPNG,
	"jpg":   FormatJPEG,
	"jpeg":  FormatJPEG,
	"dcm":   FormatDICOM,
	"dicom": FormatDICOM,
}

// AllowedExtensions returns the accepted upload extensions.
func AllowedExtensions() []string {
	return []string{"png", "jpg", "jpeg", "dcm", "dicom"}
}

// FormatFromFilename returns the format implied by a filename's extension.
//
// The extension is the text after the last dot, compared case-insensitively.
// A name without a dot has no extension.
//
// Arguments:
//   - name: The filename.
//
// Returns:
//   - ImageFormat: The format, FormatUnknown when unsupported.
func FormatFromFilename(name string) ImageFormat {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return FormatUnknown
	}
	return extensionFormats[strings.ToLower(ext)]
}
