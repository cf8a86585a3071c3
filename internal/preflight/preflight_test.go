package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/config"
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

func TestCheckFreeSpace_OK(t *testing.T) {
	result := CheckFreeSpace("test", t.TempDir(), 1)
	if !result.Passed {
		t.Fatalf("expected pass for tiny minimum, got: %s", result.Detail)
	}
}

func TestCheckFreeSpace_MissingPath(t *testing.T) {
	result := CheckFreeSpace("test", filepath.Join(t.TempDir(), "nope"), 1)
	if result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), config.LLM{BaseURL: srv.URL, APIKey: "good-key"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), config.LLM{BaseURL: srv.URL, APIKey: "bad-key"})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckBinary_OK(t *testing.T) {
	result := CheckBinary("test", "sh")
	if !result.Passed {
		t.Fatalf("expected pass for sh, got: %s", result.Detail)
	}
}

func TestCheckBinary_Missing(t *testing.T) {
	result := CheckBinary("test", "definitely-not-installed-binary")
	if result.Passed {
		t.Fatal("expected failure for missing binary")
	}
}

func TestRunAllCoversConfiguredPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.InboxDir = t.TempDir()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.LLM.BaseURL = ""
	cfg.Transcription.Binary = "sh"

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	if !AllPassed(results) {
		t.Fatalf("expected all checks to pass: %+v", results)
	}

	cfg.Paths.InboxDir = filepath.Join(t.TempDir(), "missing")
	if AllPassed(RunAll(context.Background(), &cfg)) {
		t.Fatal("expected failure with missing inbox")
	}
}
