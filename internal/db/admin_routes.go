package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/optical.position/internal/monitoring"
	"github.com/banshee-data/optical.position/internal/security"
)

// AttachAdminRoutes mounts tailsql and a backup download under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Optical position DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

// backupName derives the download name from the database file name.
func (db *DB) backupName(now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(db.path), filepath.Ext(db.path))
	return fmt.Sprintf("%s-backup-%d.db", security.SanitizeFilename(base), now.Unix())
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupName := db.backupName(time.Now())
	backupPath := filepath.Join(os.TempDir(), backupName)
	if err := security.ValidatePathWithinDirectory(backupPath, os.TempDir()); err != nil {
		http.Error(w, fmt.Sprintf("Invalid backup path: %v", err), http.StatusInternalServerError)
		return
	}
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupName))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("Failed to stream backup: %v", err)
	}
}
