package db

import (
	"bytes"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationsFS_Embedded(t *testing.T) {
	files, err := fs.Glob(MigrationsFS(), "migrations/*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 || len(files)%2 != 0 {
		t.Fatalf("expected paired up/down migrations, got %v", files)
	}
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("MigrateVersion() = %d, %v; want 1, false", version, dirty)
	}

	// a second run is a no-op
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("expected version 0 after down, got %d", version)
	}
	if _, err := db.Exec(`SELECT 1 FROM correction`); err == nil {
		t.Error("expected correction table to be dropped")
	}
}

func TestOpenDB_DoesNotMigrate(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("expected fresh database at version 0, got %d", version)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	tests := []struct {
		args    []string
		wantOut string
		wantErr bool
	}{
		{[]string{"status"}, "schema version: 0", false},
		{[]string{"up"}, "schema version: 1 (dirty: false)", false},
		{[]string{"down"}, "schema version: 0", false},
		{[]string{"force", "1"}, "schema version: 1", false},
		{[]string{"force"}, "", true},
		{[]string{"force", "one"}, "", true},
		{[]string{"sideways"}, "Usage: tracker migrate", true},
		{nil, "Usage: tracker migrate", true},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			var out bytes.Buffer
			err := RunMigrateCommand(tt.args, path, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunMigrateCommand(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output %q does not contain %q", out.String(), tt.wantOut)
			}
		})
	}
}
