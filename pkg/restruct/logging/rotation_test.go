package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/restruct/pkg/restruct/logging"
)

func TestRotationBySize(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "size_rotate.log")

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    512, // 512 bytes - small for testing
		MaxAge:     7,
		MaxBackups: 3,
		Daily:      false,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	// Write enough to trigger rotation (~100 bytes per message * 20 = ~2KB)
	for i := 0; i < 20; i++ {
		msg := strings.Repeat("x", 50) + "\n"
		if _, writeErr := writer.Write([]byte(msg)); writeErr != nil {
			t.Fatalf("Write() error = %v", writeErr)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Check that rotation happened
	files, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}

	logFiles := 0
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "size_rotate") && strings.HasSuffix(f.Name(), ".log") {
			logFiles++
		}
	}

	if logFiles < 2 {
		t.Errorf("expected at least 2 log files after rotation, got %d", logFiles)
	}
}

func TestRotationMaxBackups(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "backup_limit.log")

	maxBackups := 2
	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    256, // 256 bytes - very small for testing
		MaxAge:     7,
		MaxBackups: maxBackups,
		Daily:      false,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	// Write enough to trigger multiple rotations
	for i := 0; i < 50; i++ {
		msg := strings.Repeat("y", 30) + "\n"
		if _, writeErr := writer.Write([]byte(msg)); writeErr != nil {
			t.Fatalf("Write() error = %v", writeErr)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}

	logFiles := 0
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "backup_limit") {
			logFiles++
		}
	}

	// Should have current + MaxBackups files at most
	maxExpected := maxBackups + 1
	if logFiles > maxExpected {
		t.Errorf("expected at most %d log files, got %d", maxExpected, logFiles)
	}
}

func TestRotationConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     logging.RotationConfig
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024, // 10MB
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
			wantErr: false,
		},
		{
			name: "zero max size uses default",
			cfg: logging.RotationConfig{
				MaxSize:    0,
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      false,
			},
			wantErr: false,
		},
		{
			name: "negative max age ignored",
			cfg: logging.RotationConfig{
				MaxSize:    1024,
				MaxAge:     -1,
				MaxBackups: 5,
				Daily:      false,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tempDir := t.TempDir()
			logPath := filepath.Join(tempDir, "rotation_test.log")

			writer, err := logging.NewRotatingWriter(logPath, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRotatingWriter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if err == nil {
				if closeErr := writer.Close(); closeErr != nil {
					t.Errorf("Close() error = %v", closeErr)
				}
			}
		})
	}
}

func TestRotatedFilesKeepExtension(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "naming.log")

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    128, // 128 bytes - very small for testing
		MaxAge:     7,
		MaxBackups: 5,
		Daily:      false,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	for i := 0; i < 30; i++ {
		msg := strings.Repeat("z", 20) + "\n"
		if _, writeErr := writer.Write([]byte(msg)); writeErr != nil {
			t.Fatalf("Write() error = %v", writeErr)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}

	for _, f := range files {
		if strings.HasPrefix(f.Name(), "naming") && !strings.HasSuffix(f.Name(), ".log") {
			t.Errorf("rotated file %s lost the .log extension", f.Name())
		}
	}
}
