package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseMigrations_SortsByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_orders.up.sql":    {Data: []byte("CREATE TABLE orders (id TEXT);")},
		"sql/migrations/0002_orders.down.sql":  {Data: []byte("DROP TABLE orders;")},
		"sql/migrations/0001_catalog.up.sql":   {Data: []byte("CREATE TABLE products (id TEXT);")},
		"sql/migrations/0001_catalog.down.sql": {Data: []byte("DROP TABLE products;")},
		"sql/migrations/README.md":             {Data: []byte("ignored")},
	}

	set, err := parseMigrations(fsys)
	if err != nil {
		t.Fatalf("parseMigrations failed: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(set))
	}
	if set[0].Version != 1 || set[0].Name != "catalog" || set[1].Version != 2 {
		t.Fatalf("unexpected order: %+v", set)
	}
	if set[1].Down != "DROP TABLE orders;" {
		t.Fatalf("unexpected down script: %q", set[1].Down)
	}
}

func TestParseMigrations_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_catalog.up.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "both up and down",
		},
		{
			name: "invalid file name",
			fsys: fstest.MapFS{
				"sql/migrations/catalog.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_catalog.up.sql":   {Data: []byte("  \n")},
				"sql/migrations/0001_catalog.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_catalog.up.sql":  {Data: []byte("SELECT 1;")},
				"sql/migrations/0001_orders.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "name mismatch",
		},
		{
			name:    "no files",
			fsys:    fstest.MapFS{"sql/migrations/.keep": {Data: []byte("")}},
			wantErr: "no migration files",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseMigrations(tc.fsys)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEmbeddedMigrationsAreComplete(t *testing.T) {
	t.Parallel()

	set, err := parseMigrations(embeddedMigrations)
	if err != nil {
		t.Fatalf("embedded migrations are invalid: %v", err)
	}
	if len(set) != 4 {
		t.Fatalf("expected 4 embedded migrations, got %d", len(set))
	}
	for i, m := range set {
		if m.Version != int64(i+1) {
			t.Fatalf("expected contiguous versions, got %d at position %d", m.Version, i)
		}
	}
	if !strings.Contains(set[1].Up, "ON DELETE RESTRICT") {
		t.Fatal("orders must restrict deletion of business users")
	}
}
