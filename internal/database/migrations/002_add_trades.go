package migrations

import (
	"github.com/poolfund/poolfund-api/internal/types"
	"gorm.io/gorm"
)

func AddTrades(db *gorm.DB) error {
	return db.AutoMigrate(&types.Trade{})
}
