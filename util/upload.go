package util

import (
	"image"
	"image/png"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/nvr-ai/tumorclassifier/images"
)

// UploadStore saves uploaded images into a directory served as static content.
type UploadStore struct {
	dir       string
	urlPrefix string
	clock     func() time.Time
}

// SavedUpload describes an image written by an UploadStore.
type SavedUpload struct {
	// Name is the stored file name, "<unix-seconds>_<sanitized-name>".
	Name string
	// Path is the location on disk.
	Path string
	// URL is where the static handler serves the file.
	URL string
	// PreviewURL is a browser displayable rendition, empty unless one was written.
	PreviewURL string
}

// NewUploadStore creates the upload directory if needed.
//
// Arguments:
//   - dir: The directory uploads are written to.
//   - urlPrefix: The URL path the directory is served under.
//
// Returns:
//   - *UploadStore: The store.
//   - error: An error if the directory cannot be created.
func NewUploadStore(dir, urlPrefix string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload dir %s", dir)
	}
	return &UploadStore{dir: dir, urlPrefix: urlPrefix, clock: time.Now}, nil
}

// Dir returns the upload directory.
func (s *UploadStore) Dir() string {
	return s.dir
}

// Save writes src under a timestamped, sanitized version of filename.
//
// Arguments:
//   - filename: The client supplied filename.
//   - src: The file contents.
//
// Returns:
//   - *SavedUpload: Where the file was written and served.
//   - error: An error if writing fails; no partial file is left behind.
func (s *UploadStore) Save(filename string, src io.Reader) (*SavedUpload, error) {
	name := strconv.FormatInt(s.clock().Unix(), 10) + "_" + SecureFilename(filename)
	dst := filepath.Join(s.dir, name)

	f, err := os.Create(dst)
	if err != nil {
		return nil, errors.Wrap(err, "create upload")
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dst)
		return nil, errors.Wrap(err, "write upload")
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return nil, errors.Wrap(err, "close upload")
	}

	return &SavedUpload{
		Name: name,
		Path: dst,
		URL:  path.Join(s.urlPrefix, name),
	}, nil
}

// SavePreview writes a PNG rendition of a DICOM upload, scaled so that its
// longest edge is at most maxEdge, and sets PreviewURL. Other formats are
// left untouched since browsers display them directly.
//
// Arguments:
//   - u: The saved upload.
//   - maxEdge: The longest edge of the preview in pixels.
//
// Returns:
//   - error: An error if the DICOM cannot be decoded or the preview written.
func (s *UploadStore) SavePreview(u *SavedUpload, maxEdge uint) error {
	if images.FormatFromFilename(u.Name) != images.FormatDICOM {
		return nil
	}

	img, err := images.DecodeImage(u.Path)
	if err != nil {
		return errors.Wrap(err, "decode preview source")
	}
	img = Thumbnail(img, maxEdge)

	name := u.Name + ".png"
	dst := filepath.Join(s.dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create preview")
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(dst)
		return errors.Wrap(err, "encode preview")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close preview")
	}

	u.PreviewURL = path.Join(s.urlPrefix, name)
	return nil
}

// Thumbnail scales img down so its longest edge is at most maxEdge.
// Smaller images are returned unchanged.
func Thumbnail(img image.Image, maxEdge uint) image.Image {
	b := img.Bounds()
	if maxEdge == 0 || (uint(b.Dx()) <= maxEdge && uint(b.Dy()) <= maxEdge) {
		return img
	}
	return resize.Thumbnail(maxEdge, maxEdge, img, resize.Lanczos3)
}
