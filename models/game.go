package models

import "time"

type GameStatus string

const (
	GameStatusDraft    GameStatus = "draft"
	GameStatusFunding  GameStatus = "funding"
	GameStatusFunded   GameStatus = "funded"
	GameStatusReleased GameStatus = "released"
)

func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusDraft, GameStatusFunding, GameStatusFunded, GameStatusReleased:
		return true
	}
	return false
}

type Studio struct {
	ID          string    `bson:"id" json:"id" gorm:"primaryKey;type:text"`
	Name        string    `bson:"name" json:"name" gorm:"not null"`
	Website     string    `bson:"website" json:"website"`
	LogoURL     string    `bson:"logo_url" json:"logo_url"`
	Description string    `bson:"description" json:"description" gorm:"type:text"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

func (Studio) TableName() string { return TableStudios }

type Game struct {
	ID          string     `bson:"id" json:"id" gorm:"primaryKey;type:text"`
	StudioID    string     `bson:"studio_id" json:"studio_id" gorm:"type:text;index"`
	Title       string     `bson:"title" json:"title" gorm:"not null"`
	Slug        string     `bson:"slug" json:"slug" gorm:"uniqueIndex;not null"`
	Tagline     string     `bson:"tagline" json:"tagline"`
	Description string     `bson:"description" json:"description" gorm:"type:text"`
	Genre       string     `bson:"genre" json:"genre"`
	CoverURL    string     `bson:"cover_url" json:"cover_url"`
	TrailerURL  string     `bson:"trailer_url" json:"trailer_url"`
	Status      GameStatus `bson:"status" json:"status" gorm:"type:text;not null;default:'draft'"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at" gorm:"index"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
}

func (Game) TableName() string { return TableGames }

type GameMedia struct {
	ID         string    `bson:"id" json:"id" gorm:"primaryKey;type:text"`
	GameID     string    `bson:"game_id" json:"game_id" gorm:"type:text;not null;index"`
	Kind       string    `bson:"kind" json:"kind" gorm:"not null;default:'image'"`
	URL        string    `bson:"url" json:"url" gorm:"not null"`
	Caption    string    `bson:"caption" json:"caption"`
	OrderIndex int       `bson:"order_index" json:"order_index" gorm:"not null;default:0"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

func (GameMedia) TableName() string { return TableGameMedia }

type GameFunding struct {
	ID           string     `bson:"id" json:"id" gorm:"primaryKey;type:text"`
	GameID       string     `bson:"game_id" json:"game_id" gorm:"type:text;not null;uniqueIndex"`
	GoalAmount   int64      `bson:"goal_amount" json:"goal_amount" gorm:"not null"`
	RaisedAmount int64      `bson:"raised_amount" json:"raised_amount" gorm:"not null;default:0"`
	BackerCount  int64      `bson:"backer_count" json:"backer_count" gorm:"not null;default:0"`
	Currency     string     `bson:"currency" json:"currency" gorm:"not null;default:'USD'"`
	EndsAt       *time.Time `bson:"ends_at" json:"ends_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

func (GameFunding) TableName() string { return TableGameFunding }

// Progress is the raised share of the goal in percent, capped at 100.
func (f GameFunding) Progress() float64 {
	if f.GoalAmount <= 0 {
		return 0
	}
	p := float64(f.RaisedAmount) / float64(f.GoalAmount) * 100
	if p > 100 {
		return 100
	}
	return p
}

// GameCard is the catalog listing entry.
type GameCard struct {
	Game        Game         `json:"game"`
	TaglineHTML string       `json:"tagline_html"`
	Funding     *GameFunding `json:"funding,omitempty"`
	Progress    float64      `json:"progress"`
}

type GameDetail struct {
	Game        Game         `json:"game"`
	TaglineHTML string       `json:"tagline_html"`
	Studio      *Studio      `json:"studio,omitempty"`
	Media       []GameMedia  `json:"media"`
	Funding     *GameFunding `json:"funding,omitempty"`
	Progress    float64      `json:"progress"`
}
