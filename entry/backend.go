package entry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/Corn-mrb/project/bot"
)

// Backend persists the complete set of stores. Save always receives the
// whole registry and replaces whatever was stored before.
type Backend interface {
	Load(ctx context.Context) (map[string]*Store, error)
	Save(ctx context.Context, stores map[string]*Store) error
	Close() error
}

// OpenBackend returns the backend selected by cfg.Storage.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Storage.Type {
	case StorageTypeFile, "":
		if cfg.StoresFile == "" {
			return nil, errors.New("stores file is required for file storage")
		}
		return NewFileBackend(cfg.StoresFile), nil
	case StorageTypeSQLite, StorageTypePostgres:
		return NewDatabaseBackend(ctx, cfg.Storage, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// FileBackend keeps stores in a single JSON document keyed by code.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) Path() string {
	return f.path
}

// Load reads the stores file. A missing file or a null document is an
// empty registry.
func (f *FileBackend) Load(_ context.Context) (map[string]*Store, error) {
	stores := map[string]*Store{}
	if err := bot.ReadJSONFile(f.path, &stores); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]*Store{}, nil
		}
		return nil, err
	}
	if stores == nil {
		return map[string]*Store{}, nil
	}
	for code, s := range stores {
		if s == nil {
			delete(stores, code)
			continue
		}
		if s.ApprovedUsers == nil {
			s.ApprovedUsers = []Snowflake{}
		}
	}
	return stores, nil
}

func (f *FileBackend) Save(_ context.Context, stores map[string]*Store) error {
	return bot.WriteJSONFile(f.path, stores)
}

func (f *FileBackend) Close() error {
	return nil
}
