package documents

import (
	"context"
	"errors"
	"fmt"

	"caredraft/internal/storage"
)

// Result holds the initialized document store and the storage it owns, if any.
type Result struct {
	Store   Store
	Storage storage.Storage
}

// Close releases resources held by the document store.
func (r *Result) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// New opens storage for cfg and creates the document store on top of it.
// The memory type needs no connection.
func New(ctx context.Context, cfg storage.Config) (*Result, error) {
	if cfg.Type == storage.TypeMemory {
		return &Result{Store: NewMemoryStore()}, nil
	}

	st, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	store, err := NewWithStorage(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &Result{Store: store, Storage: st}, nil
}

// NewWithStorage creates a document store on an already open connection.
func NewWithStorage(ctx context.Context, st storage.Storage) (Store, error) {
	if st == nil {
		return nil, fmt.Errorf("storage is required")
	}
	switch st.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(st.SQLDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, st.Pool())
	case storage.TypeMongoDB:
		return NewMongoDBStore(st.Database())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", st.Type())
	}
}
