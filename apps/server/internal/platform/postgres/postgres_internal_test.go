package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/runs", pgx5URL("postgres://u:p@db:5432/runs"))
	assert.Equal(t, "pgx5://db/runs?sslmode=disable", pgx5URL("postgresql://db/runs?sslmode=disable"))
	assert.Equal(t, "pgx5://db/runs", pgx5URL("pgx5://db/runs"))
}
