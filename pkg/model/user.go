package model

import "time"

// User is an account owned by the auth service.
// Sessions hold a read-only copy without the password hash.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName returns the name to greet the user with, falling back to the email.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Public returns a copy of the user safe to keep in a session.
func (u *User) Public() *User {
	return &User{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}
