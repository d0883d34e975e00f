package models

import (
	"encoding/json"
	"time"
)

const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
)

const (
	KindBountyPost  = "bounty_post"
	KindBountyAward = "bounty_award"
)

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Balance      int    `json:"balance"`
}

type Bounty struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Reward        int       `json:"reward"`
	Status        string    `json:"status"`
	CreatedBy     int       `json:"created_by"`
	CreatedByName string    `json:"created_by_name,omitempty"`
	AssignedTo    *int      `json:"assigned_to"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Transaction struct {
	ID           string          `json:"id"`
	UserID       int             `json:"user_id"`
	ChangeAmount int             `json:"change_amount"`
	Kind         string          `json:"kind"`
	Metadata     json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Application struct {
	ID        int       `json:"id"`
	BountyID  int       `json:"bounty_id"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        int       `json:"id"`
	BountyID  int       `json:"bounty_id"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Attachment struct {
	ID        int       `json:"id"`
	BountyID  int       `json:"bounty_id"`
	UserID    int       `json:"user_id"`
	Filename  string    `json:"filename"`
	Filepath  string    `json:"filepath"`
	CreatedAt time.Time `json:"created_at"`
}
