package ledger

import (
	"errors"

	"github.com/poolfund/poolfund-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateGroup(group *types.Group) error {
	return d.db.Create(group).Error
}

func (d *Database) GetGroup(groupID string) (*types.Group, error) {
	var group types.Group
	if err := d.db.Where("group_id = ?", groupID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

func (d *Database) GetMember(groupID, userID string) (*types.Member, error) {
	var member types.Member
	if err := d.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// GetMembers returns all members of a group in join order.
func (d *Database) GetMembers(groupID string) ([]types.Member, error) {
	var members []types.Member
	if err := d.db.Where("group_id = ?", groupID).Order("joined_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (d *Database) CountMembers(groupID string) (int64, error) {
	var count int64
	if err := d.db.Model(&types.Member{}).Where("group_id = ?", groupID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (d *Database) GetTrades(groupID string) ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.Where("group_id = ?", groupID).Order("executed_at ASC").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// Transaction runs fn inside a gorm transaction against a Database view.
func (d *Database) Transaction(fn func(tx *Database) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

func (d *Database) CreateMember(member *types.Member) error {
	return d.db.Create(member).Error
}

func (d *Database) SaveMember(member *types.Member) error {
	return d.db.Save(member).Error
}

func (d *Database) SaveGroup(group *types.Group) error {
	return d.db.Save(group).Error
}

func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}
