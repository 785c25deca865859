package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"rawlabel/internal/config"
	"rawlabel/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReadableDirectory_Unconfigured(t *testing.T) {
	if result := CheckReadableDirectory("Data root", " "); result.Passed || result.Detail != "not configured" {
		t.Fatalf("expected unconfigured failure, got %+v", result)
	}
}

func TestCheckDatabase_CreatesAndVerifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rawlabel.db")
	result := CheckDatabase(context.Background(), "db", path)
	if !result.Passed {
		t.Fatalf("expected fresh database to pass, got: %s", result.Detail)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file to be created: %v", err)
	}
}

func TestCheckObjectStore_MissingConfig(t *testing.T) {
	result := CheckObjectStore(context.Background(), config.S3{})
	if result.Passed {
		t.Fatal("expected failure without endpoint")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 checks, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, failed: %+v", failed)
	}
	if results[len(results)-1].Name != "ExifTool" {
		t.Fatalf("expected exiftool check last, got %+v", results[len(results)-1])
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %+v", results)
	}
}
