package models

import "time"

// User is a reader account and its cumulative profile.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Age          int
	Avatar       string
	Score        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of a user returned by the profile API.
type Profile struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Avatar string `json:"avatar"`
	Score  int    `json:"score"`
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Age:    u.Age,
		Avatar: u.Avatar,
		Score:  u.Score,
	}
}

// ProfileUpdate is a partial profile upsert. Nil fields are left unchanged.
type ProfileUpdate struct {
	Score  *int    `json:"score,omitempty"`
	Name   *string `json:"name,omitempty"`
	Age    *int    `json:"age,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Score == nil && u.Name == nil && u.Age == nil && u.Avatar == nil
}

// ReadingRecord is one score flush credited to a user.
type ReadingRecord struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Points     int       `json:"points"`
	TotalAfter int       `json:"total_after"`
	RecordedAt time.Time `json:"recorded_at"`
}
