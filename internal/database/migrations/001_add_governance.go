package migrations

import (
	"github.com/poolfund/poolfund-api/internal/types"
	"gorm.io/gorm"
)

func AddGovernance(db *gorm.DB) error {
	// Votes carry a unique (poll_id, user_id) index so a duplicate vote
	// racing past the service-level check fails at the database.
	if err := db.AutoMigrate(&types.Poll{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Vote{}); err != nil {
		return err
	}

	return nil
}
