package model

import (
	"context"
	"path/filepath"
	"testing"

	"studio/internal/config"
	"studio/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRepositorySQLite(t *testing.T) {
	cfg := &config.Config{DBType: DBTypeSQLite, DBPath: filepath.Join(t.TempDir(), "nested", "studio.db")}
	repo, err := InitRepository(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	user, err := SeedOperator(ctx, repo, config.Config{SeedOperatorEmail: "ops@example.com"})
	require.NoError(t, err)

	loaded, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.UserRoleAdmin, loaded.Role)
}

func TestInitRepositoryRejectsUnknownType(t *testing.T) {
	_, err := InitRepository(&config.Config{DBType: "oracle"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = InitRepository(&config.Config{})
	assert.Error(t, err)
}
