package volume

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLocalProvider(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := NewLocalProvider(tmpDir)
	if err != nil {
		t.Fatalf("NewLocalProvider() error = %v", err)
	}
	if p.basePath != tmpDir {
		t.Errorf("basePath = %v, want %v", p.basePath, tmpDir)
	}
}

func TestRegisterCreatesDataDir(t *testing.T) {
	p, _ := NewLocalProvider(t.TempDir())

	path, err := p.Register("vol-1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if path != p.Path("vol-1") {
		t.Errorf("Register() path = %v, want %v", path, p.Path("vol-1"))
	}
	if _, err := os.Stat(p.DataPath("vol-1")); err != nil {
		t.Errorf("data directory was not created: %v", err)
	}
}

func TestAttachExclusivity(t *testing.T) {
	p, _ := NewLocalProvider(t.TempDir())
	if _, err := p.Register("vol-1"); err != nil {
		t.Fatal(err)
	}

	if err := p.Attach("vol-1", "claim-a"); err != nil {
		t.Fatalf("first Attach() error = %v", err)
	}
	// Same claim re-attaching is idempotent.
	if err := p.Attach("vol-1", "claim-a"); err != nil {
		t.Errorf("re-Attach() by owner error = %v", err)
	}
	// A different claim must be refused.
	if err := p.Attach("vol-1", "claim-b"); err == nil {
		t.Error("Attach() by second claim succeeded, want error")
	}
}

func TestDetachRetainsData(t *testing.T) {
	p, _ := NewLocalProvider(t.TempDir())
	if _, err := p.Register("vol-1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Attach("vol-1", "claim-a"); err != nil {
		t.Fatal(err)
	}

	dataFile := filepath.Join(p.DataPath("vol-1"), "db.sqlite")
	if err := os.WriteFile(dataFile, []byte("precious"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := p.Detach("vol-1"); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}

	// Data survives release.
	content, err := os.ReadFile(dataFile)
	if err != nil {
		t.Fatalf("data did not survive detach: %v", err)
	}
	if string(content) != "precious" {
		t.Errorf("data content = %q, want %q", content, "precious")
	}
}

func TestResetRefusesAttachedVolume(t *testing.T) {
	p, _ := NewLocalProvider(t.TempDir())
	if _, err := p.Register("vol-1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Attach("vol-1", "claim-a"); err != nil {
		t.Fatal(err)
	}

	if err := p.Reset("vol-1"); err == nil {
		t.Error("Reset() on attached volume succeeded, want error")
	}
}

func TestResetWipesDetachedVolume(t *testing.T) {
	p, _ := NewLocalProvider(t.TempDir())
	if _, err := p.Register("vol-1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Attach("vol-1", "claim-a"); err != nil {
		t.Fatal(err)
	}

	dataFile := filepath.Join(p.DataPath("vol-1"), "db.sqlite")
	if err := os.WriteFile(dataFile, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := p.Detach("vol-1"); err != nil {
		t.Fatal(err)
	}

	if err := p.Reset("vol-1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := os.Stat(dataFile); !os.IsNotExist(err) {
		t.Error("data file survived Reset()")
	}
	if _, err := os.Stat(p.DataPath("vol-1")); err != nil {
		t.Errorf("data directory missing after Reset(): %v", err)
	}
}
