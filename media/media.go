// Package media validates and stores files attached to posts.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Kind string

const (
	Video Kind = "video"
	Image Kind = "image"
	Gif   Kind = "gif"
)

var extensions = map[Kind][]string{
	Video: {".mov", ".avi", ".mp4", ".webm", ".mkv"},
	Image: {".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"},
	Gif:   {".gif"},
}

var ErrUnsupported = errors.New("unsupported file extension")

// Validate checks filename against the extensions allowed for kind and
// returns the normalized extension.
func Validate(kind Kind, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range extensions[kind] {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w %q for %s, allowed: %s",
		ErrUnsupported, ext, kind, strings.Join(extensions[kind], ", "))
}

// DiskStore writes uploads under Root and serves them from BaseURL, one
// directory per owner.
type DiskStore struct {
	Root    string
	BaseURL string
}

func NewDiskStore(root, baseURL string) *DiskStore {
	return &DiskStore{Root: root, BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// Save stores src under a random name and returns its public URL.
func (d *DiskStore) Save(owner string, kind Kind, filename string, src io.Reader) (string, error) {
	ext, err := Validate(kind, filename)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(d.Root, owner, "media")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + ext
	full := filepath.Join(dir, name)
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return "", err
	}
	return d.BaseURL + "/" + path.Join(owner, "media", name), nil
}

// Remove deletes a file previously returned by Save. Unknown URLs are
// ignored.
func (d *DiskStore) Remove(url string) error {
	rel, ok := strings.CutPrefix(url, d.BaseURL+"/")
	if !ok || strings.Contains(rel, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(d.Root, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
