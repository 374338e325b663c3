package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFilesystemPutOpenDelete(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	written, err := store.Put(ctx, "notes/user-1/a.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if written != 8 {
		t.Fatalf("expected 8 bytes written, got %d", written)
	}

	file, err := store.Open(ctx, "/notes/user-1/a.pdf")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	content, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(content) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", content)
	}

	info, err := store.Stat(ctx, "notes/user-1/a.pdf")
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size != 8 || info.ModTime.IsZero() {
		t.Fatalf("unexpected object info %+v", info)
	}
	if _, err := store.Stat(ctx, "notes/user-1"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected directories to be reported missing, got %v", err)
	}

	if err := store.Delete(ctx, "notes/user-1/a.pdf"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Stat(ctx, "notes/user-1/a.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected stat to miss after delete, got %v", err)
	}
	if err := store.Delete(ctx, "notes/user-1/a.pdf"); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
	if _, err := store.Open(ctx, "notes/user-1/a.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCleanKey(t *testing.T) {
	testCases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "notes/a.pdf", want: "notes/a.pdf"},
		{raw: "/notes//b.pdf", want: "notes/b.pdf"},
		{raw: "notes\\c.pdf", want: "notes/c.pdf"},
		{raw: "notes/../d.pdf", want: "d.pdf"},
		{raw: "../outside", wantErr: true},
		{raw: "..", wantErr: true},
		{raw: "   ", wantErr: true},
	}
	for _, testCase := range testCases {
		got, err := CleanKey(testCase.raw)
		if testCase.wantErr {
			if !errors.Is(err, ErrInvalidObjectKey) {
				t.Fatalf("expected invalid key for %q, got %q %v", testCase.raw, got, err)
			}
			continue
		}
		if err != nil || got != testCase.want {
			t.Fatalf("CleanKey(%q) = %q, %v; want %q", testCase.raw, got, err, testCase.want)
		}
	}
}
