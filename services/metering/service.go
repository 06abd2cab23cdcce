package metering

import (
	"context"
	"errors"

	"licensegate/pkg/errutil"
	"licensegate/pkg/repository"
	"licensegate/services/license"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errDuplicateEvent aborts the credit transaction when the idempotency key
// has already been applied.
var errDuplicateEvent = errors.New("duplicate payment event")

// Service is the usage meter: the only component that mutates license hour
// balances. Deduct and Credit are single transactional store operations,
// never read-then-write, so concurrent requests cannot lose updates.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	licenses repository.Repository[license.License]
	payments repository.Repository[license.PaymentEvent]
	usage    repository.Repository[license.UsageRecord]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		licenses: repository.ProvideStore[license.License](p.DB),
		payments: repository.ProvideStore[license.PaymentEvent](p.DB),
		usage:    repository.ProvideStore[license.UsageRecord](p.DB),
	}
}

// CheckBalance is advisory: enforcement happens at deduction time, so a
// stale read here can never over-charge.
func (s *Service) CheckBalance(ctx context.Context, key string) (float64, error) {
	lic, err := s.licenses.FindOne(ctx, &license.License{Key: key})
	if err != nil {
		return 0, errutil.StorageError("failed to read balance", errutil.WithErr(err))
	}
	if lic == nil {
		return 0, errutil.NotFound("license not found")
	}
	return lic.HoursRemaining(), nil
}

// Deduct consumes hours from the license balance. The decrement is a single
// conditional UPDATE guarded by the remaining balance, so two racing calls
// against one remaining hour can never both succeed. ok=false means the
// condition failed (insufficient balance or lost the race); the caller must
// not retry the side effect.
func (s *Service) Deduct(ctx context.Context, key string, hours float64, endpoint string) (float64, bool, error) {
	if hours <= 0 {
		return 0, false, errutil.BadRequest("deduction must be positive")
	}

	var (
		newBalance float64
		ok         bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&license.License{}).
			Where("license_key = ? AND purchased_hours - used_hours >= ?", key, hours).
			Update("used_hours", gorm.Expr("used_hours + ?", hours))
		if res.Error != nil {
			return errutil.StorageError("failed to deduct hours", errutil.WithErr(res.Error))
		}

		lic, err := s.licenses.WithTrx(tx).FindOne(ctx, &license.License{Key: key})
		if err != nil {
			return errutil.StorageError("failed to read balance", errutil.WithErr(err))
		}
		if lic == nil {
			return errutil.NotFound("license not found")
		}

		newBalance = lic.HoursRemaining()

		if res.RowsAffected == 0 {
			// insufficient balance: leave ok=false, nothing to audit
			return nil
		}

		ok = true
		return s.usage.WithTrx(tx).Create(ctx, &license.UsageRecord{
			ID:            s.node.Generate().String(),
			LicenseKey:    key,
			Endpoint:      endpoint,
			HoursConsumed: hours,
		})
	})
	if err != nil {
		return 0, false, err
	}

	return newBalance, ok, nil
}

// Credit applies a payment notification at most once. The PaymentEvent insert
// and the balance increment share one transaction; the unique constraint on
// idempotency_key makes any redelivery a no-op with applied=false.
func (s *Service) Credit(ctx context.Context, key string, hours, amount float64, idempotencyKey string, payload []byte) (float64, bool, error) {
	if hours <= 0 {
		return 0, false, errutil.BadRequest("credited hours must be positive")
	}
	if idempotencyKey == "" {
		return 0, false, errutil.BadRequest("idempotency key is required")
	}

	var newBalance float64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lic, err := s.licenses.WithTrx(tx).FindOne(ctx, &license.License{Key: key})
		if err != nil {
			return errutil.StorageError("failed to read license", errutil.WithErr(err))
		}
		if lic == nil {
			return errutil.NotFound("license not found")
		}

		event := &license.PaymentEvent{
			ID:             s.node.Generate().String(),
			IdempotencyKey: idempotencyKey,
			LicenseKey:     key,
			HoursCredited:  hours,
			Amount:         amount,
			Payload:        datatypes.JSON(payload),
		}
		if err := s.payments.WithTrx(tx).Create(ctx, event); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateEvent
			}
			return errutil.StorageError("failed to record payment event", errutil.WithErr(err))
		}

		res := tx.Model(&license.License{}).
			Where("license_key = ?", key).
			Update("purchased_hours", gorm.Expr("purchased_hours + ?", hours))
		if res.Error != nil {
			return errutil.StorageError("failed to credit hours", errutil.WithErr(res.Error))
		}

		newBalance = lic.HoursRemaining() + hours
		return nil
	})

	if errors.Is(err, errDuplicateEvent) {
		zap.L().Info("duplicate payment event ignored",
			zap.String("license_key", key),
			zap.String("idempotency_key", idempotencyKey),
		)

		balance, berr := s.CheckBalance(ctx, key)
		if berr != nil {
			return 0, false, berr
		}
		return balance, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return newBalance, true, nil
}
