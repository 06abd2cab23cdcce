package license

import (
	"context"
	"strings"
	"time"

	"licensegate/pkg/config"
	"licensegate/pkg/db/option"
	"licensegate/pkg/errutil"
	"licensegate/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultDurationDays = 365

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	policy config.Policy
	repo   repository.Repository[License]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Policy config.Policy
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		policy: p.Policy,
		repo:   repository.ProvideStore[License](p.DB),
	}
}

type CreateLicenseRequest struct {
	Name         string      `json:"name" binding:"required"`
	Email        string      `json:"email" binding:"required,email"`
	Company      string      `json:"company"`
	Type         LicenseType `json:"type"`
	DurationDays int         `json:"duration_days"`
	Hours        float64     `json:"hours"`
}

// Create registers a new license. The balance defaults to zero; real hours
// arrive through the payment webhook.
func (s *Service) Create(ctx context.Context, req CreateLicenseRequest) (*License, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("email", req.Email),
	)

	licType := req.Type
	if licType == "" {
		licType = TypeTrial
	}
	if !licType.Valid() {
		return nil, errutil.ValidationFailed("unknown license type",
			errutil.WithDetails(errutil.Detail{Field: "type", Message: string(req.Type)}))
	}

	if req.Hours < 0 {
		return nil, errutil.ValidationFailed("hours must be non-negative")
	}

	durationDays := req.DurationDays
	if durationDays <= 0 {
		durationDays = defaultDurationDays
	}

	now := time.Now().UTC()
	lic := &License{
		ID:             s.node.Generate().String(),
		Key:            GenerateKey(s.policy.LicenseKeySecret, strings.ToLower(req.Email), req.Company, now),
		Name:           req.Name,
		Email:          strings.ToLower(req.Email),
		Company:        req.Company,
		Type:           licType,
		Status:         StatusActive,
		PurchasedHours: req.Hours,
		MaxInstalls:    licType.MaxInstalls(),
		ExpiresAt:      now.AddDate(0, 0, durationDays),
	}

	if err := s.repo.Create(ctx, lic); err != nil {
		zapLog.Error("failed to create license", zap.Error(err))
		return nil, errutil.StorageError("failed to create license", errutil.WithErr(err))
	}

	zapLog.Info("license created",
		zap.String("license_id", lic.ID),
		zap.String("type", string(lic.Type)),
		zap.Time("expires_at", lic.ExpiresAt),
	)

	return lic, nil
}

// Get looks up a license by key.
func (s *Service) Get(ctx context.Context, key string) (*License, error) {
	lic, err := s.repo.FindOne(ctx, &License{Key: key})
	if err != nil {
		zap.L().Error("failed to query license", zap.Error(err))
		return nil, errutil.StorageError("failed to query license", errutil.WithErr(err))
	}
	if lic == nil {
		return nil, errutil.NotFound("license not found")
	}
	return lic, nil
}

// Revoke marks the license revoked. The record is retained for audit.
func (s *Service) Revoke(ctx context.Context, key string) (*License, error) {
	lic, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.Update(ctx, lic.ID, map[string]any{
		"status":     StatusRevoked,
		"revoked_at": now,
		"updated_at": now,
	}); err != nil {
		zap.L().Error("failed to revoke license", zap.Error(err), zap.String("license_id", lic.ID))
		return nil, errutil.StorageError("failed to revoke license", errutil.WithErr(err))
	}

	lic.Status = StatusRevoked
	lic.RevokedAt = &now
	return lic, nil
}

// RegisterInstall records an install fingerprint, enforcing the per-type
// install ceiling. Re-registering a known fingerprint is a no-op.
func (s *Service) RegisterInstall(ctx context.Context, key, fingerprint string) (*License, error) {
	if fingerprint == "" {
		return nil, errutil.ValidationFailed("fingerprint is required")
	}

	var out *License
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTrx(tx)

		lic, err := repoTx.FindOne(ctx, &License{Key: key}, option.WithLockingUpdate())
		if err != nil {
			return errutil.StorageError("failed to query license", errutil.WithErr(err))
		}
		if lic == nil {
			return errutil.NotFound("license not found")
		}

		for _, known := range lic.Installs {
			if known == fingerprint {
				out = lic
				return nil
			}
		}

		if lic.InstallCount >= lic.MaxInstalls {
			return errutil.InstallLimit("install limit reached for this license")
		}

		lic.Installs = append(lic.Installs, fingerprint)
		lic.InstallCount++

		if err := repoTx.Update(ctx, lic.ID, map[string]any{
			"installs":      lic.Installs,
			"install_count": lic.InstallCount,
			"updated_at":    time.Now().UTC(),
		}); err != nil {
			return errutil.StorageError("failed to register install", errutil.WithErr(err))
		}

		out = lic
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ExpireDue flips past-due active licenses to expired. Invoked by the
// scheduled sweep; the validator never depends on it, expiry is always
// checked against expires_at at validation time.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&License{}).
		Where("status = ? AND expires_at < ?", StatusActive, time.Now().UTC()).
		Updates(map[string]any{"status": StatusExpired, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, errutil.StorageError("failed to expire licenses", errutil.WithErr(res.Error))
	}

	if res.RowsAffected > 0 {
		zap.L().Info("expired past-due licenses", zap.Int64("count", res.RowsAffected))
	}

	return res.RowsAffected, nil
}
