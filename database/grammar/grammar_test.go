package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForDriver(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"mysql", "mysql"},
		{"pgx", "postgres"},
		{"postgres", "postgres"},
		{"sqlite", "sqlite"},
		{"sqlite3", "sqlite"},
		{"", "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			assert.Equal(t, tt.want, ForDriver(tt.driver).Name())
		})
	}
}

func TestGrammar_Wrap(t *testing.T) {
	g := MySQL()

	assert.Equal(t, "`id`", g.Wrap("id"))
	assert.Equal(t, "`u`.`id`", g.Wrap("u.id"))
	assert.Equal(t, "`u`.*", g.Wrap("u.*"))
	assert.Equal(t, "*", g.Wrap("*"))
	assert.Equal(t, "`name` as `n`", g.Wrap("name AS n"))
	assert.Equal(t, "`a``b`", g.Wrap("a`b"))
	assert.Equal(t, `"id"`, Postgres().Wrap("id"))
}

func TestGrammar_TablePrefix(t *testing.T) {
	g := MySQL()
	g.SetTablePrefix("app_")

	assert.Equal(t, "app_", g.TablePrefix())
	assert.Equal(t, "`app_user`", g.WrapTable("user"))
}

func TestGrammar_Savepoints(t *testing.T) {
	g := MySQL()

	assert.True(t, g.SupportsSavepoints())
	assert.Equal(t, "SAVEPOINT trans2", g.CompileSavepoint("trans2"))
	assert.Equal(t, "ROLLBACK TO SAVEPOINT trans2", g.CompileSavepointRollBack("trans2"))
	assert.False(t, Plain().SupportsSavepoints())
}

func TestGrammar_Placeholder(t *testing.T) {
	assert.Equal(t, "?", MySQL().Placeholder(3))
	assert.Equal(t, "$3", Postgres().Placeholder(3))
	assert.Equal(t, "?", SQLite().Placeholder(1))
}
