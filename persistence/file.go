package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

//Backend reads and writes whole documents. It does no locking of its own, the record store serialises access per kind.
type Backend interface {
	//Read returns the raw document, initialising it to an empty mapping when it does not exist yet
	Read(kind Kind) ([]byte, error)
	//Write replaces the whole document
	Write(kind Kind, data []byte) error
	Ping() error
	Close() error
}

//FileBackend keeps one JSON file per document kind inside a data directory
type FileBackend struct {
	dir string
}

//NewFileBackend creates the data directory if needed
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).WithField("dir", dir).Error("could not create data directory")
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(kind Kind) string {
	return filepath.Join(b.dir, string(kind)+".json")
}

func (b *FileBackend) Read(kind Kind) ([]byte, error) {
	data, err := os.ReadFile(b.path(kind))
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("kind", kind).Info("document does not exist yet, initialising empty mapping")
		if err := b.Write(kind, emptyDocument); err != nil {
			return nil, err
		}
		return emptyDocument, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path(kind), err)
	}
	return data, nil
}

//Write goes through a temp file renamed over the target so readers never see half a document
func (b *FileBackend) Write(kind Kind, data []byte) (err error) {
	tmp, err := os.CreateTemp(b.dir, "."+string(kind)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), b.path(kind)); err != nil {
		return fmt.Errorf("replace %s: %w", b.path(kind), err)
	}
	return nil
}

//Ping checks the data directory is still there
func (b *FileBackend) Ping() error {
	info, err := os.Stat(b.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", b.dir)
	}
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}
