// Package payload opens and checks the packages submitted for analysis.
package payload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/imposteroid/apkscan/internal/client"
	"github.com/pkg/errors"
)

const (
	DefaultMaxSize int64 = 200 * 1024 * 1024
	Extension            = ".apk"

	ContentTypeAPK         = "application/vnd.android.package-archive"
	ContentTypeZip         = "application/zip"
	ContentTypeOctetStream = "application/octet-stream"
)

// AllowedContentTypes are the types the analysis service accepts.
var AllowedContentTypes = []string{ContentTypeAPK, ContentTypeZip, ContentTypeOctetStream}

var (
	ErrNotAPK   = errors.New("only .apk files are allowed")
	ErrTooLarge = errors.New("file exceeds the maximum allowed size")
	ErrEmpty    = errors.New("file is empty")
)

// File is a package opened for upload.
type File struct {
	Path string
	Name string
	Size int64
	// ContentType is the sniffed type sent along with the file.
	ContentType string
	// Detected is the sniffed type before it was mapped to an allowed one.
	Detected string

	f *os.File
}

// Validate checks the name and size of a package without touching its content.
func Validate(name string, size, maxSize int64) error {
	if !strings.EqualFold(filepath.Ext(name), Extension) {
		return errors.Wrapf(ErrNotAPK, "%s", name)
	}
	if size <= 0 {
		return errors.Wrapf(ErrEmpty, "%s", name)
	}
	if maxSize > 0 && size > maxSize {
		return errors.Wrapf(ErrTooLarge, "%s is %d bytes, limit is %d", name, size, maxSize)
	}
	return nil
}

// Allowed reports whether contentType is one the service accepts.
func Allowed(contentType string) bool {
	for _, t := range AllowedContentTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// Open validates the file at path and sniffs its content type. The caller must Close the returned File.
func Open(path string, maxSize int64) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat package")
	}
	if info.IsDir() {
		return nil, errors.Errorf("%s is a directory", path)
	}
	if err := Validate(info.Name(), info.Size(), maxSize); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open package")
	}

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "failed to detect package type")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "failed to rewind package")
	}

	return &File{
		Path:        path,
		Name:        info.Name(),
		Size:        info.Size(),
		ContentType: contentType(mt),
		Detected:    mt.String(),
		f:           f,
	}, nil
}

// contentType maps a sniffed type to the closest accepted one. The .apk
// extension is authoritative, so anything unexpected is sent as a plain binary.
func contentType(mt *mimetype.MIME) string {
	for m := mt; m != nil; m = m.Parent() {
		for _, t := range []string{ContentTypeAPK, ContentTypeZip} {
			if m.Is(t) {
				return t
			}
		}
	}
	return ContentTypeOctetStream
}

// Sniffed reports whether the detected type is one the service accepts as is.
func (f *File) Sniffed() bool {
	return Allowed(f.Detected)
}

// Payload returns the upload view of the file.
func (f *File) Payload() client.Payload {
	return client.Payload{
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		Reader:      f.f,
	}
}

func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	if err := f.f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", f.Path, err)
	}
	return nil
}
