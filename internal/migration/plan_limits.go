package migration

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

// SyncPlanLimits writes the catalog's member limits to plan_limits, the table
// the plan-limit read path consults.
func SyncPlanLimits(ctx context.Context, db *gorm.DB, limits map[domain.PlanType]int, now time.Time) error {
	plans := make([]string, 0, len(limits))
	for plan := range limits {
		plans = append(plans, string(plan))
	}
	sort.Strings(plans)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range plans {
			err := tx.Exec(
				`INSERT INTO plan_limits (plan_type, max_members, updated_at)
				 VALUES (?, ?, ?)
				 ON CONFLICT (plan_type) DO UPDATE SET
					max_members = excluded.max_members,
					updated_at = excluded.updated_at`,
				plan,
				limits[domain.PlanType(plan)],
				now,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
