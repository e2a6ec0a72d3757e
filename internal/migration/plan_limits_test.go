package migration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:plan_limits_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE plan_limits (
		plan_type TEXT PRIMARY KEY,
		max_members INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error)
	return db
}

type planLimit struct {
	PlanType   string
	MaxMembers int
}

func TestSyncPlanLimitsUpserts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.Exec(`INSERT INTO plan_limits (plan_type, max_members, updated_at) VALUES ('free', 3, ?)`, now).Error)

	limits := map[domain.PlanType]int{
		domain.PlanFree:    5,
		domain.PlanPremium: 200,
	}
	require.NoError(t, SyncPlanLimits(ctx, db, limits, now))
	require.NoError(t, SyncPlanLimits(ctx, db, limits, now.Add(time.Hour)))

	var rows []planLimit
	require.NoError(t, db.Table("plan_limits").Order("plan_type").Find(&rows).Error)
	assert.Equal(t, []planLimit{
		{PlanType: "free", MaxMembers: 5},
		{PlanType: "premium", MaxMembers: 200},
	}, rows)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, 1, ups)
	assert.Equal(t, ups, downs)
}
