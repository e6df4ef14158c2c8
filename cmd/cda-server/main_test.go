package main

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/clinicaldocs/internal/config"
	"github.com/ehr/clinicaldocs/internal/domain/cdadocument"
)

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := newLogger(&config.Config{Env: "production", LogLevel: tt.level}, &buf)
		if got := logger.GetLevel(); got != tt.want {
			t.Errorf("newLogger(%q) level = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{Env: "production", LogLevel: "info"}, &buf)
	logger.Info().Str("document_id", "abc").Msg("hello")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"document_id":"abc"`) {
		t.Errorf("expected JSON log line, got %q", buf.String())
	}
}

func TestMigrationsFS_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS(""), ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			found = true
		}
	}
	if !found {
		t.Error("expected at least one embedded .sql migration")
	}
}

func TestMigrationsFS_Override(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_x.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := fs.ReadFile(migrationsFS(dir), "001_x.sql")
	if err != nil {
		t.Fatalf("read override: %v", err)
	}
	if string(b) != "SELECT 1;" {
		t.Errorf("unexpected content %q", b)
	}
}

func newRequestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	addRequestFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestRequestFromFlags(t *testing.T) {
	cmd := newRequestCmd(t,
		"--kind", "lab-report",
		"--patient", "6f1c1c2e-8a4f-4d7e-9c1a-1b2c3d4e5f60",
		"--source", "0b7e6a8e-1111-4222-8333-444455556666",
	)
	req, err := requestFromFlags(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Kind != cdadocument.KindLabReport {
		t.Errorf("kind = %s, want lab-report", req.Kind)
	}
	if req.MedicalRecordID != nil {
		t.Errorf("expected no medical record, got %s", req.MedicalRecordID)
	}
	if req.SourceID == nil || req.SourceID.String() != "0b7e6a8e-1111-4222-8333-444455556666" {
		t.Errorf("unexpected source id %v", req.SourceID)
	}
}

func TestRequestFromFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown kind", []string{"--kind", "memo", "--patient", "6f1c1c2e-8a4f-4d7e-9c1a-1b2c3d4e5f60"}, "unknown document kind"},
		{"bad patient", []string{"--kind", "prescription", "--patient", "nope"}, "--patient"},
		{"bad medical record", []string{"--kind", "prescription", "--patient", "6f1c1c2e-8a4f-4d7e-9c1a-1b2c3d4e5f60", "--medical-record", "x"}, "--medical-record"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := requestFromFlags(newRequestCmd(t, tt.args...))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadSource(t *testing.T) {
	src, err := loadSource("")
	if err != nil || src == nil {
		t.Fatalf("empty path: src=%v err=%v", src, err)
	}

	path := filepath.Join(t.TempDir(), "snap.json")
	snap := `{"patients":[{"id":"6f1c1c2e-8a4f-4d7e-9c1a-1b2c3d4e5f60","code":"P001","full_name":"Nguyen Van A","gender":1}]}`
	if err := os.WriteFile(path, []byte(snap), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err = loadSource(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmd := newRequestCmd(t, "--kind", "prescription", "--patient", "6f1c1c2e-8a4f-4d7e-9c1a-1b2c3d4e5f60")
	req, _ := requestFromFlags(cmd)
	p, err := src.Patient(context.Background(), req.PatientID)
	if err != nil {
		t.Fatalf("patient lookup: %v", err)
	}
	if p.FullName != "Nguyen Van A" {
		t.Errorf("unexpected patient %+v", p)
	}

	if _, err := loadSource(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing snapshot")
	}
}
