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

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/pkg/database"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
)

// ClaimOutcome reports how a reservation attempt resolved.
type ClaimOutcome int

const (
	// ClaimReserved means a fresh placeholder was written.
	ClaimReserved ClaimOutcome = iota
	// ClaimAlreadyReserved means a reservation already existed; the claim
	// succeeds without writing a second one.
	ClaimAlreadyReserved
	// ClaimRejectedUsed means the identity already consumed its trial.
	ClaimRejectedUsed
	// ClaimRejectedActive means a valid trial is currently running.
	ClaimRejectedActive
)

// ActivateOutcome reports how a membership-join activation resolved.
type ActivateOutcome int

const (
	// ActivateCreated means a new signed trial row was written.
	ActivateCreated ActivateOutcome = iota
	// ActivateAlreadyActive means a valid unexpired trial already exists;
	// the join is an idempotent no-op.
	ActivateAlreadyActive
	// ActivateCooldown means the identity consumed a trial and the
	// cooldown window has not elapsed.
	ActivateCooldown
)

type ITrialRepository interface {
	GetActiveTrial(ctx context.Context, identity int64) (*model.ActiveTrial, error)
	GetUsedTrial(ctx context.Context, identity int64) (*model.UsedTrial, error)
	Claim(ctx context.Context, identity int64, now time.Time) (ClaimOutcome, error)
	ReleaseClaim(ctx context.Context, identity int64) error
	Activate(ctx context.Context, trial *model.ActiveTrial, cooldownDays int, now time.Time) (ActivateOutcome, *model.ActiveTrial, time.Time, error)
	Terminate(ctx context.Context, identity int64, reason string, endedAt time.Time) (*model.ActiveTrial, error)
	ListActiveTrials(ctx context.Context) ([]model.ActiveTrial, error)
	DeleteActiveTrial(ctx context.Context, identity int64) error
	DeleteStaleReservations(ctx context.Context, reservedBefore time.Time) (int64, error)
	Counts(ctx context.Context) (model.TrialCounts, error)
}

type TrialRepo struct {
	database.IDatabase
	sealer *model.Sealer
	audit  IAuditRepository
}

func NewTrialRepo(db database.IDatabase, sealer *model.Sealer, audit IAuditRepository) ITrialRepository {
	return &TrialRepo{
		IDatabase: db,
		sealer:    sealer,
		audit:     audit,
	}
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

// GetActiveTrial returns the identity's trial, nil when none exists. A row
// whose signature fails verification is reported as absent after a security
// event; the sweep removes it.
func (tr *TrialRepo) GetActiveTrial(ctx context.Context, identity int64) (*model.ActiveTrial, error) {
	var trial model.ActiveTrial
	err := tr.Database().WithContext(ctx).Table(trial.TableName()).
		Where("identity = ?", identity).First(&trial).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !trial.Verify(tr.sealer) {
		tr.reportMismatch(ctx, &trial)
		return nil, nil
	}
	return &trial, nil
}

func (tr *TrialRepo) GetUsedTrial(ctx context.Context, identity int64) (*model.UsedTrial, error) {
	var used model.UsedTrial
	err := tr.Database().WithContext(ctx).Table(used.TableName()).
		Where("identity = ?", identity).First(&used).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &used, nil
}

// Claim reserves the identity's trial slot ahead of invite creation. The
// check and the placeholder write run in one transaction under row locks;
// every writer takes the used-slot lock before the active-slot lock, and
// the placeholder insert tolerates losing a race so two concurrent claims
// resolve as one reserve plus one already-reserved.
func (tr *TrialRepo) Claim(ctx context.Context, identity int64, now time.Time) (ClaimOutcome, error) {
	outcome := ClaimReserved
	err := tr.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var used model.UsedTrial
		err := tx.Clauses(forUpdate).
			Where("identity = ?", identity).Take(&used).Error
		switch {
		case err == nil:
			if used.Consumed() {
				outcome = ClaimRejectedUsed
				return nil
			}
			// Existing reservation: refresh its timestamp so the sweep
			// does not clear it mid-flow, and report success.
			outcome = ClaimAlreadyReserved
			return tx.Model(&model.UsedTrial{}).
				Where("identity = ?", identity).
				Update("reserved_at", now).Error
		case !isNotFound(err):
			return err
		}

		var active model.ActiveTrial
		err = tx.Clauses(forUpdate).
			Where("identity = ?", identity).Take(&active).Error
		switch {
		case err == nil:
			if active.Verify(tr.sealer) {
				outcome = ClaimRejectedActive
				return nil
			}
			// An unverifiable row does not count as a trial; leave it for
			// the sweep and let the claim proceed.
			tr.reportMismatch(ctx, &active)
		case !isNotFound(err):
			return err
		}

		reserved := &model.UsedTrial{
			Identity:   identity,
			Status:     model.UsedTrialStatusReserved,
			ReservedAt: &now,
		}
		res := tx.Table(reserved.TableName()).
			Clauses(clause.OnConflict{DoNothing: true}).Create(reserved)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = ClaimAlreadyReserved
		}
		return nil
	})
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}

// ReleaseClaim removes a reservation placeholder. Consumed rows are never
// touched.
func (tr *TrialRepo) ReleaseClaim(ctx context.Context, identity int64) error {
	return tr.Database().WithContext(ctx).
		Where("identity = ? AND status = ?", identity, model.UsedTrialStatusReserved).
		Delete(&model.UsedTrial{}).Error
}

// Activate writes the signed trial row for a membership join. Everything
// runs in one transaction: an expired leftover trial is folded into the
// used slot first, the cooldown is enforced against that slot, and on
// success the new trial replaces both the reservation placeholder and any
// used row whose cooldown has elapsed.
//
// The returned time is the cooldown end, meaningful only for
// ActivateCooldown. For ActivateAlreadyActive the existing row is returned.
func (tr *TrialRepo) Activate(ctx context.Context, trial *model.ActiveTrial, cooldownDays int, now time.Time) (ActivateOutcome, *model.ActiveTrial, time.Time, error) {
	var (
		outcome  = ActivateCreated
		existing *model.ActiveTrial
		until    time.Time
	)
	// Signed fields are stored at second precision; normalize before
	// sealing so the read-back row still verifies.
	trial.JoinTime = trial.JoinTime.Truncate(time.Second)
	trial.TrialEndAt = trial.TrialEndAt.Truncate(time.Second)
	err := tr.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var used model.UsedTrial
		hasUsed := true
		err := tx.Clauses(forUpdate).
			Where("identity = ?", trial.Identity).Take(&used).Error
		if err != nil {
			if !isNotFound(err) {
				return err
			}
			hasUsed = false
		}

		var current model.ActiveTrial
		err = tx.Clauses(forUpdate).
			Where("identity = ?", trial.Identity).Take(&current).Error
		switch {
		case err == nil:
			switch {
			case !current.Verify(tr.sealer):
				// Unverifiable rows never count; replace rather than trust.
				tr.reportMismatch(ctx, &current)
				if err := tx.Where("identity = ?", trial.Identity).
					Delete(&model.ActiveTrial{}).Error; err != nil {
					return err
				}
			case current.Expired(now):
				// The expiry task has not fired yet; settle the old trial
				// here so the cooldown check below sees it.
				if err := tr.settleUsed(tx, trial.Identity, model.EndReasonExpired, current.TrialEndAt); err != nil {
					return err
				}
				if err := tx.Where("identity = ?", trial.Identity).
					Delete(&model.ActiveTrial{}).Error; err != nil {
					return err
				}
				endedAt := current.TrialEndAt
				used = model.UsedTrial{
					Identity: trial.Identity,
					Status:   model.UsedTrialStatusUsed,
					Reason:   model.EndReasonExpired,
					EndedAt:  &endedAt,
				}
				hasUsed = true
			default:
				outcome = ActivateAlreadyActive
				existing = &current
				return nil
			}
		case !isNotFound(err):
			return err
		}

		if hasUsed {
			if used.Consumed() {
				until = used.CooldownUntil(cooldownDays)
				if now.Before(until) {
					outcome = ActivateCooldown
					return nil
				}
			}
			// Reservation placeholder, or a used row past its cooldown:
			// the new trial replaces it in the same transaction.
			if err := tx.Where("identity = ?", trial.Identity).
				Delete(&model.UsedTrial{}).Error; err != nil {
				return err
			}
		}

		trial.Seal(tr.sealer)
		return tx.Table(trial.TableName()).Create(trial).Error
	})
	if err != nil {
		return outcome, nil, time.Time{}, err
	}
	return outcome, existing, until, nil
}

// Terminate settles a running trial: one transaction writes the consumed
// row and removes the active one. An absent or unverifiable trial is a
// no-op, so the expiry task, the leave handler and the sweep can all fire
// for the same identity and only the first takes effect.
func (tr *TrialRepo) Terminate(ctx context.Context, identity int64, reason string, endedAt time.Time) (*model.ActiveTrial, error) {
	var terminated *model.ActiveTrial
	err := tr.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Used-slot lock first, same order as every other writer.
		var used model.UsedTrial
		if err := tx.Clauses(forUpdate).
			Where("identity = ?", identity).Take(&used).Error; err != nil && !isNotFound(err) {
			return err
		}

		var current model.ActiveTrial
		err := tx.Clauses(forUpdate).
			Where("identity = ?", identity).Take(&current).Error
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if !current.Verify(tr.sealer) {
			tr.reportMismatch(ctx, &current)
			return nil
		}
		if err := tr.settleUsed(tx, identity, reason, endedAt); err != nil {
			return err
		}
		if err := tx.Where("identity = ?", identity).
			Delete(&model.ActiveTrial{}).Error; err != nil {
			return err
		}
		terminated = &current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return terminated, nil
}

// settleUsed upserts the consumed-trial row inside a running transaction.
// The slot may hold a reservation placeholder, which becomes the record.
func (tr *TrialRepo) settleUsed(tx *gorm.DB, identity int64, reason string, endedAt time.Time) error {
	used := &model.UsedTrial{
		Identity: identity,
		Status:   model.UsedTrialStatusUsed,
		Reason:   reason,
		EndedAt:  &endedAt,
	}
	return tx.Table(used.TableName()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "reason", "ended_at", "reserved_at", "updated_at"}),
		}).Create(used).Error
}

// ListActiveTrials returns every trial row as stored, signatures included.
// Callers that trust the rows must verify them; the sweep and the restart
// rebuild use the raw view to find what needs deleting.
func (tr *TrialRepo) ListActiveTrials(ctx context.Context) ([]model.ActiveTrial, error) {
	var trials []model.ActiveTrial
	err := tr.Database().WithContext(ctx).Table((&model.ActiveTrial{}).TableName()).
		Find(&trials).Error
	if err != nil {
		return nil, err
	}
	return trials, nil
}

// DeleteActiveTrial removes a trial row without settling it. Used by the
// sweep for rows that failed verification.
func (tr *TrialRepo) DeleteActiveTrial(ctx context.Context, identity int64) error {
	return tr.Database().WithContext(ctx).
		Where("identity = ?", identity).Delete(&model.ActiveTrial{}).Error
}

// DeleteStaleReservations clears placeholders whose invite window passed
// without a join.
func (tr *TrialRepo) DeleteStaleReservations(ctx context.Context, reservedBefore time.Time) (int64, error) {
	res := tr.Database().WithContext(ctx).
		Where("status = ? AND reserved_at < ?", model.UsedTrialStatusReserved, reservedBefore).
		Delete(&model.UsedTrial{})
	return res.RowsAffected, res.Error
}

// Counts reports row totals for the ops endpoint and the active-trials gauge.
// Replica reads, same as the other dashboard queries.
func (tr *TrialRepo) Counts(ctx context.Context) (model.TrialCounts, error) {
	var counts model.TrialCounts
	db := database.ReadDB(tr.Database().WithContext(ctx))
	if err := db.Table((&model.ActiveTrial{}).TableName()).
		Count(&counts.Active).Error; err != nil {
		return counts, err
	}
	if err := db.Table((&model.UsedTrial{}).TableName()).
		Where("status = ?", model.UsedTrialStatusReserved).
		Count(&counts.Reserved).Error; err != nil {
		return counts, err
	}
	if err := db.Table((&model.UsedTrial{}).TableName()).
		Where("status = ?", model.UsedTrialStatusUsed).
		Count(&counts.Used).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

// reportMismatch logs the security event, records the audit row and bumps
// the counter for a trial row that failed verification.
func (tr *TrialRepo) reportMismatch(ctx context.Context, trial *model.ActiveTrial) {
	log.Errorw("active trial signature mismatch, treating record as absent",
		"identity", trial.Identity, "joinTime", trial.JoinTime, "trialEndAt", trial.TrialEndAt)
	metrics.RecordSignatureMismatch("active_trial")
	if err := tr.audit.Append(ctx, &model.AuditEvent{
		Identity: trial.Identity,
		Action:   model.AuditSignatureMismatch,
		Detail:   "active trial record failed verification",
	}); err != nil {
		log.Warnw("failed to record signature mismatch audit event",
			"identity", trial.Identity, "error", err)
	}
}
