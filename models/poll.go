package models

import "time"

type PollStatus string

const (
	// PollStatusOpen accepts votes.
	PollStatusOpen PollStatus = "open"
	// PollStatusExpiredOpen is still flagged active but past its closing time.
	PollStatusExpiredOpen PollStatus = "expired_open"
	PollStatusClosed      PollStatus = "closed"
)

type Poll struct {
	ID        string    `bson:"id" json:"id" gorm:"primaryKey;type:text"`
	GameID    string    `bson:"game_id" json:"game_id" gorm:"type:text;not null;index"`
	Question  string    `bson:"question" json:"question" gorm:"not null"`
	ClosesAt  time.Time `bson:"closes_at" json:"closes_at" gorm:"not null"`
	Active    bool      `bson:"active" json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `bson:"created_at" json:"created_at" gorm:"index"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (Poll) TableName() string { return TablePolls }

// Expired reports whether the closing time has passed. Expiry never changes
// the active flag.
func (p Poll) Expired(now time.Time) bool {
	return !now.Before(p.ClosesAt)
}

func (p Poll) Status(now time.Time) PollStatus {
	switch {
	case !p.Active:
		return PollStatusClosed
	case p.Expired(now):
		return PollStatusExpiredOpen
	default:
		return PollStatusOpen
	}
}

type PollOption struct {
	ID         string    `bson:"id" json:"id" gorm:"primaryKey;type:text"`
	PollID     string    `bson:"poll_id" json:"poll_id" gorm:"type:text;not null;index"`
	OptionText string    `bson:"option_text" json:"option_text" gorm:"not null"`
	Votes      int64     `bson:"votes" json:"votes" gorm:"not null;default:0"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

func (PollOption) TableName() string { return TablePollOptions }

// PollWithOptions is a poll as shown to players: options oldest first.
type PollWithOptions struct {
	Poll       Poll         `json:"poll"`
	Options    []PollOption `json:"options"`
	TotalVotes int64        `json:"total_votes"`
	Status     PollStatus   `json:"status"`
	Expired    bool         `json:"expired"`
}

func NewPollWithOptions(p Poll, options []PollOption, now time.Time) PollWithOptions {
	var total int64
	for _, o := range options {
		total += o.Votes
	}
	if options == nil {
		options = []PollOption{}
	}
	return PollWithOptions{
		Poll:       p,
		Options:    options,
		TotalVotes: total,
		Status:     p.Status(now),
		Expired:    p.Expired(now),
	}
}

// At recomputes the time-dependent fields for now.
func (p PollWithOptions) At(now time.Time) PollWithOptions {
	p.Status = p.Poll.Status(now)
	p.Expired = p.Poll.Expired(now)
	return p
}
