package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var ErrNotFound = errors.New("blob not found")

// Store przechowuje wgrane pliki importu pod kluczem.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key buduje klucz pliku batcha: <prefix>/<batch_id>/<oczyszczona nazwa>.
func Key(prefix, batchID, fileName string) string {
	name := unsafeChars.ReplaceAllString(filepath.Base(fileName), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return path.Join(strings.Trim(prefix, "/"), batchID, name)
}

// LocalStore trzyma pliki w katalogu na dysku.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{Dir: dir}, nil
}

func (l *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(l.Dir, filepath.FromSlash(clean)), nil
}

func (l *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// zapis przez plik tymczasowy, żeby czytelnik nie zobaczył połówki
	tmp := p + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

func (l *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}
