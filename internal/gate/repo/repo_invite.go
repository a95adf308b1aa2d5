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

// InviteClaimOutcome reports how an invite placeholder claim resolved.
type InviteClaimOutcome int

const (
	// InviteClaimCreating means this caller owns a fresh placeholder and
	// must now create the external link.
	InviteClaimCreating InviteClaimOutcome = iota
	// InviteClaimReady means a valid unexpired link already exists.
	InviteClaimReady
	// InviteClaimInProgress means another caller holds a fresh placeholder.
	InviteClaimInProgress
)

type IInviteRepository interface {
	GetInvite(ctx context.Context, identity int64) (*model.InviteRecord, error)
	ClaimCreating(ctx context.Context, identity int64, now time.Time) (InviteClaimOutcome, *model.InviteRecord, error)
	FinalizeReady(ctx context.Context, identity int64, reference string, expiresAt time.Time) (*model.InviteRecord, error)
	DeleteInvite(ctx context.Context, identity int64) error
	DeleteStaleCreating(ctx context.Context, createdBefore time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type InviteRepo struct {
	database.IDatabase
	sealer *model.Sealer
	audit  IAuditRepository
}

func NewInviteRepo(db database.IDatabase, sealer *model.Sealer, audit IAuditRepository) IInviteRepository {
	return &InviteRepo{
		IDatabase: db,
		sealer:    sealer,
		audit:     audit,
	}
}

// GetInvite returns the identity's invite row, nil when none exists. A
// ready row that fails verification is reported as absent after a security
// event; creating placeholders carry no signature yet and pass through.
func (ir *InviteRepo) GetInvite(ctx context.Context, identity int64) (*model.InviteRecord, error) {
	var invite model.InviteRecord
	err := ir.Database().WithContext(ctx).Table(invite.TableName()).
		Where("identity = ?", identity).First(&invite).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if invite.Status == model.InviteStatusReady && !invite.Verify(ir.sealer) {
		ir.reportMismatch(ctx, &invite)
		return nil, nil
	}
	return &invite, nil
}

// ClaimCreating decides in one transaction who gets to create the external
// link. A valid unexpired ready row wins outright; a fresh creating row
// belongs to someone else; a stale creating row, an expired ready row or an
// unverifiable one is taken over.
func (ir *InviteRepo) ClaimCreating(ctx context.Context, identity int64, now time.Time) (InviteClaimOutcome, *model.InviteRecord, error) {
	var (
		outcome  = InviteClaimCreating
		existing *model.InviteRecord
	)
	err := ir.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invite model.InviteRecord
		err := tx.Clauses(forUpdate).
			Where("identity = ?", identity).Take(&invite).Error
		switch {
		case err == nil:
			switch invite.Status {
			case model.InviteStatusReady:
				if invite.Verify(ir.sealer) && invite.Usable(now) {
					outcome = InviteClaimReady
					existing = &invite
					return nil
				}
				if !invite.Verify(ir.sealer) {
					ir.reportMismatch(ctx, &invite)
				}
			case model.InviteStatusCreating:
				if !invite.Stale(now) {
					outcome = InviteClaimInProgress
					return nil
				}
				log.Warnw("taking over stale invite placeholder",
					"identity", identity, "claimedAt", invite.CreatedAt)
			}
			// Expired, unverifiable or abandoned: replace the row with a
			// fresh placeholder owned by this caller.
			if err := tx.Where("identity = ?", identity).
				Delete(&model.InviteRecord{}).Error; err != nil {
				return err
			}
		case !isNotFound(err):
			return err
		}

		placeholder := &model.InviteRecord{
			Identity: identity,
			Status:   model.InviteStatusCreating,
		}
		res := tx.Table(placeholder.TableName()).
			Clauses(clause.OnConflict{DoNothing: true}).Create(placeholder)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = InviteClaimInProgress
		}
		return nil
	})
	if err != nil {
		return outcome, nil, err
	}
	return outcome, existing, nil
}

// FinalizeReady seals the created link into the placeholder and removes the
// funnel record in the same transaction; issuing the invite is the grant.
func (ir *InviteRepo) FinalizeReady(ctx context.Context, identity int64, reference string, expiresAt time.Time) (*model.InviteRecord, error) {
	var finalized *model.InviteRecord
	// Signed fields are stored at second precision; normalize before
	// sealing so the read-back row still verifies.
	expiresAt = expiresAt.Truncate(time.Second)
	err := ir.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invite model.InviteRecord
		if err := tx.Clauses(forUpdate).
			Where("identity = ?", identity).Take(&invite).Error; err != nil {
			return err
		}
		invite.Status = model.InviteStatusReady
		invite.Reference = reference
		invite.ExpiresAt = expiresAt
		invite.Seal(ir.sealer)
		if err := tx.Table(invite.TableName()).
			Where("identity = ?", identity).
			Updates(map[string]any{
				"status":     invite.Status,
				"reference":  invite.Reference,
				"expires_at": invite.ExpiresAt,
				"signature":  invite.Signature,
			}).Error; err != nil {
			return err
		}
		if err := tx.Where("identity = ?", identity).
			Delete(&model.PendingVerification{}).Error; err != nil {
			return err
		}
		finalized = &invite
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

// DeleteInvite removes the invite row, used when external creation fails.
func (ir *InviteRepo) DeleteInvite(ctx context.Context, identity int64) error {
	return ir.Database().WithContext(ctx).
		Where("identity = ?", identity).Delete(&model.InviteRecord{}).Error
}

// DeleteStaleCreating clears abandoned placeholders.
func (ir *InviteRepo) DeleteStaleCreating(ctx context.Context, createdBefore time.Time) (int64, error) {
	res := ir.Database().WithContext(ctx).
		Where("status = ? AND created_at < ?", model.InviteStatusCreating, createdBefore).
		Delete(&model.InviteRecord{})
	return res.RowsAffected, res.Error
}

// DeleteExpired clears ready rows whose link window has passed, whether
// the link was consumed by a join or simply never used.
func (ir *InviteRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := ir.Database().WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.InviteStatusReady, now).
		Delete(&model.InviteRecord{})
	return res.RowsAffected, res.Error
}

func (ir *InviteRepo) reportMismatch(ctx context.Context, invite *model.InviteRecord) {
	log.Errorw("invite record signature mismatch, treating record as absent",
		"identity", invite.Identity, "expiresAt", invite.ExpiresAt)
	metrics.RecordSignatureMismatch("invite")
	if err := ir.audit.Append(ctx, &model.AuditEvent{
		Identity: invite.Identity,
		Action:   model.AuditSignatureMismatch,
		Detail:   "invite record failed verification",
	}); err != nil {
		log.Warnw("failed to record signature mismatch audit event",
			"identity", invite.Identity, "error", err)
	}
}
