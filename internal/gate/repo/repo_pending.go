// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repo

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/go-gatehouse/gatehouse/internal/gate/consts"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/pkg/cache"
	"github.com/go-gatehouse/gatehouse/pkg/database"
)

type IPendingRepository interface {
	GetPending(ctx context.Context, identity int64) (*model.PendingVerification, error)
	SavePending(ctx context.Context, pending *model.PendingVerification) error
	DeletePending(ctx context.Context, identity int64) error
	DeleteStalePending(ctx context.Context, updatedBefore time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type PendingRepo struct {
	database.IDatabase
	cache.ICache

	statusCounts *cache.CachedQuery[map[string]int64]
}

func NewPendingRepo(db database.IDatabase, redisCache cache.ICache) IPendingRepository {
	pr := &PendingRepo{
		IDatabase: db,
		ICache:    redisCache,
	}
	pr.statusCounts = cache.NewCachedQuery(
		redisCache,
		func(...any) string { return consts.RedisKeyFunnelCounts },
		pr.countByStatus,
		cache.WithTTL[map[string]int64](30*time.Second),
		cache.WithLogPrefix[map[string]int64]("[FunnelCounts]"),
	)
	return pr
}

// GetPending returns the funnel record for an identity, nil when none exists.
func (pr *PendingRepo) GetPending(ctx context.Context, identity int64) (*model.PendingVerification, error) {
	var pending model.PendingVerification
	err := pr.Database().WithContext(ctx).Table(pending.TableName()).
		Where("identity = ?", identity).First(&pending).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &pending, nil
}

// SavePending inserts or replaces the funnel record. The funnel advances a
// record in place, so the whole row is written on conflict.
func (pr *PendingRepo) SavePending(ctx context.Context, pending *model.PendingVerification) error {
	return pr.Database().WithContext(ctx).Table(pending.TableName()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			UpdateAll: true,
		}).Create(pending).Error
}

func (pr *PendingRepo) DeletePending(ctx context.Context, identity int64) error {
	return pr.Database().WithContext(ctx).
		Where("identity = ?", identity).Delete(&model.PendingVerification{}).Error
}

// DeleteStalePending removes funnel records not touched since updatedBefore.
// Blocked records go too; the consumed-trial table is what enforces the
// one trial rule, a funnel record only tracks progress.
func (pr *PendingRepo) DeleteStalePending(ctx context.Context, updatedBefore time.Time) (int64, error) {
	res := pr.Database().WithContext(ctx).
		Where("updated_at < ?", updatedBefore).
		Delete(&model.PendingVerification{})
	return res.RowsAffected, res.Error
}

// CountByStatus reports how many records sit at each funnel status.
// Totals feed the admin overview only, so they ride a short cache.
func (pr *PendingRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return pr.statusCounts.Get(ctx)
}

func (pr *PendingRepo) countByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := database.ReadDB(pr.Database().WithContext(ctx)).Table((&model.PendingVerification{}).TableName()).
		Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
