package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got = %v, expected = %v\n", err, ErrNotFound)
	}

	snap := Snapshot{Room: "notes", Text: "héllo", Revision: 3, UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("error: %v\n", err)
	}
	got, err := s.Load(ctx, "notes")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if !cmp.Equal(got, snap) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, snap))
	}

	// Saving again replaces the snapshot.
	snap.Text, snap.Revision = "hello world", 4
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("error: %v\n", err)
	}
	got, err = s.Load(ctx, "notes")
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if !cmp.Equal(got, snap) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, snap))
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartshare.db")
	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	testStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("error: %v\n", err)
	}

	// Snapshots survive reopening the file.
	s, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	defer s.Close()
	got, err := s.Load(context.Background(), "notes")
	if err != nil || got.Revision != 4 {
		t.Errorf("got = (%v, %v), expected revision 4\n", got, err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		description string
		dsn         string
		expectedErr error
	}{
		{description: "memory", dsn: "memory://"},
		{description: "empty means memory", dsn: ""},
		{description: "bolt", dsn: "bolt://" + filepath.Join(t.TempDir(), "open.db")},
		{description: "unknown scheme", dsn: "mongodb://localhost", expectedErr: ErrUnsupportedDSN},
	}

	for _, tc := range tests {
		s, err := Open(context.Background(), tc.dsn)
		if !errors.Is(err, tc.expectedErr) {
			t.Errorf("(%s) got = %v, expected = %v\n", tc.description, err, tc.expectedErr)
			continue
		}
		if s != nil {
			s.Close()
		}
	}
}
