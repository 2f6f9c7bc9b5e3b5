package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSQLiteConcurrentWriteSafety(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "nested", "test.db")})
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	defer store.Close()

	if store.Type() != TypeSQLite || store.Pool() != nil || store.Database() != nil {
		t.Fatalf("unexpected accessors for sqlite storage")
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	db := store.SQLDB()
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS test_docs (id TEXT PRIMARY KEY, data TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	const goroutines = 8
	const insertsPerGoroutine = 25

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*insertsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < insertsPerGoroutine; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, err := db.ExecContext(ctx, `INSERT INTO test_docs (id, data) VALUES (?, ?)`,
					fmt.Sprintf("%d-%d", id, j), "payload")
				cancel()
				if err != nil {
					errs <- fmt.Errorf("goroutine %d insert %d: %w", id, j, err)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write error: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM test_docs").Scan(&count); err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != goroutines*insertsPerGoroutine {
		t.Errorf("got %d rows, want %d", count, goroutines*insertsPerGoroutine)
	}
}

func TestNew_RejectsUnknownAndMemory(t *testing.T) {
	for _, typ := range []string{"", TypeMemory, "oracle"} {
		if _, err := New(context.Background(), Config{Type: typ}); err == nil {
			t.Errorf("New(%q) should fail", typ)
		}
	}
}

func TestValidType(t *testing.T) {
	for _, typ := range []string{TypeMemory, TypeSQLite, TypePostgreSQL, TypeMongoDB} {
		if !ValidType(typ) {
			t.Errorf("ValidType(%q) = false", typ)
		}
	}
	if ValidType("oracle") {
		t.Error("ValidType(oracle) = true")
	}
}
