package license

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("license.module",
	fx.Provide(
		NewService,
		NewValidator,
		NewExpiryTrigger,
	),
	fx.Invoke(AutoMigrate),
)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&License{},
		&PaymentEvent{},
		&UsageRecord{},
	)
}
