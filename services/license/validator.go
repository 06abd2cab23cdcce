package license

import (
	"context"
	"errors"
	"time"

	"licensegate/pkg/config"
	"licensegate/pkg/errutil"
	"licensegate/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultValidatorTimeout = 50 * time.Millisecond

// Validator classifies a presented key against the license store. It is
// read-only; the access-control middleware owns the policy response.
type Validator struct {
	repo    repository.Repository[License]
	timeout time.Duration
	now     func() time.Time
}

type ValidatorParams struct {
	fx.In
	DB     *gorm.DB
	Policy config.Policy
}

func NewValidator(p ValidatorParams) *Validator {
	timeout := p.Policy.ValidatorTimeout
	if timeout <= 0 {
		timeout = defaultValidatorTimeout
	}

	return &Validator{
		repo:    repository.ProvideStore[License](p.DB),
		timeout: timeout,
		now:     time.Now,
	}
}

// Validate returns the license when the key is valid, or an errutil error
// carrying the classification: AUTH_INVALID (malformed or unknown),
// LICENSE_REVOKED, LICENSE_EXPIRED, UPSTREAM_UNAVAILABLE (store unreachable
// or over the latency budget — never silently treated as invalid).
func (v *Validator) Validate(ctx context.Context, key string) (*License, error) {
	if !ValidKeyFormat(key) {
		return nil, errutil.AuthInvalid("malformed license key")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	lic, err := v.repo.FindOne(ctx, &License{Key: key})
	if err != nil {
		zap.L().Error("license lookup failed", zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errutil.UpstreamUnavailable("license store timed out", errutil.WithErr(err))
		}
		return nil, errutil.UpstreamUnavailable("license store unreachable", errutil.WithErr(err))
	}
	if lic == nil {
		return nil, errutil.AuthInvalid("unknown license key")
	}

	if lic.Status == StatusRevoked {
		return nil, errutil.LicenseRevoked("license has been revoked")
	}
	if lic.Status == StatusExpired || lic.Expired(v.now()) {
		return nil, errutil.LicenseExpired("license has expired")
	}

	return lic, nil
}
