package db

import (
	"testing"
	"testing/fstest"
)

func TestMigrationFilesOrdered(t *testing.T) {
	fsys := fstest.MapFS{
		"002_second.sql": {Data: []byte("SELECT 2")},
		"001_first.sql":  {Data: []byte("SELECT 1")},
		"README.md":      {Data: []byte("docs")},
		"sub/003.sql":    {Data: []byte("SELECT 3")},
	}
	names, err := migrationFiles(fsys)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(names) != 2 || names[0] != "001_first.sql" || names[1] != "002_second.sql" {
		t.Fatalf("unexpected order: %v", names)
	}
}
