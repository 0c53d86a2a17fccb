package governance

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

func (d *Database) CreatePoll(poll *types.Poll) error {
	return d.db.Create(poll).Error
}

func (d *Database) GetPoll(pollID string) (*types.Poll, error) {
	var poll types.Poll
	if err := d.db.Where("poll_id = ?", pollID).First(&poll).Error; err != nil {
		return nil, err
	}
	return &poll, nil
}

func (d *Database) SavePoll(poll *types.Poll) error {
	return d.db.Save(poll).Error
}

func (d *Database) GetPolls(groupID string) ([]types.Poll, error) {
	var polls []types.Poll
	if err := d.db.Where("group_id = ?", groupID).Order("created_at DESC").Find(&polls).Error; err != nil {
		return nil, err
	}
	return polls, nil
}

func (d *Database) GetVotes(pollID string) ([]types.Vote, error) {
	var votes []types.Vote
	if err := d.db.Where("poll_id = ?", pollID).Order("voted_at ASC").Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

// HasVoted reports whether a user already has a vote on a poll.
func (d *Database) HasVoted(pollID, userID string) (bool, error) {
	var vote types.Vote
	err := d.db.Where("poll_id = ? AND user_id = ?", pollID, userID).First(&vote).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// CreateVoteIfAbsent appends a vote inside a transaction, failing with
// ErrDuplicateVote when the user already voted. The unique (poll_id,
// user_id) index backstops the check against concurrent submissions.
func (d *Database) CreateVoteIfAbsent(vote *types.Vote) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var existing types.Vote
		err := tx.Where("poll_id = ? AND user_id = ?", vote.PollID, vote.UserID).First(&existing).Error
		if err == nil {
			return types.ErrDuplicateVote
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.Create(vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return types.ErrDuplicateVote
			}
			return err
		}
		return nil
	})
}
