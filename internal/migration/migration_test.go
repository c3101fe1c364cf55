package migration

import (
	"io/fs"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestActivationUniqueIndexShipsInSQL(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init_licensing.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "ux_license_activations_license_domain")
	assert.Contains(t, string(body), "ON DELETE CASCADE")
}

func TestRunAutoMigratesSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Run(conn))

	var tables []string
	require.NoError(t, conn.Raw(`SELECT name FROM sqlite_master WHERE type = 'table'`).Scan(&tables).Error)
	sort.Strings(tables)
	for _, want := range []string{"audit_logs", "csv_upload_jobs", "license_activations", "licenses", "packages", "products", "subscription_events"} {
		assert.Contains(t, tables, want)
	}
}

// MySQL cannot index TEXT columns without a prefix length and has no jsonb,
// so AutoMigrate there needs sized strings on every indexed column.
func TestModelColumnsPortableAcrossAutoMigrateDialects(t *testing.T) {
	cache := &sync.Map{}
	for _, model := range Models() {
		sch, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)

		for _, field := range sch.Fields {
			columnType := strings.ToLower(field.TagSettings["TYPE"])
			assert.NotEqual(t, "jsonb", columnType, "%s.%s", sch.Table, field.DBName)

			_, indexed := field.TagSettings["INDEX"]
			_, unique := field.TagSettings["UNIQUEINDEX"]
			if (indexed || unique) && field.DataType == schema.String {
				assert.True(t, strings.HasPrefix(columnType, "varchar("),
					"%s.%s is indexed but typed %q", sch.Table, field.DBName, columnType)
			}
		}
	}
}
