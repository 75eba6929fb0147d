package model

import "time"

type Customer struct {
	ID                  string
	Email               string
	PasswordHash        string
	FullName            string
	Phone               *string
	IsEmailVerified     bool
	VerificationHash    *string
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	LastLoginAt         *time.Time
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CustomerView is the client-facing projection; secrets never leave the server.
type CustomerView struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FullName        string     `json:"fullName"`
	Phone           *string    `json:"phone,omitempty"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (c Customer) View() CustomerView {
	return CustomerView{
		ID:              c.ID,
		Email:           c.Email,
		FullName:        c.FullName,
		Phone:           c.Phone,
		IsEmailVerified: c.IsEmailVerified,
		LastLoginAt:     c.LastLoginAt,
		CreatedAt:       c.CreatedAt,
	}
}

type CustomerSession struct {
	ID         string
	CustomerID string
	TokenHash  string
	ExpiresAt  time.Time
	UserAgent  *string
	IPAddress  *string
	CreatedAt  time.Time
}

const RoleAdmin = "admin"

type AdminUser struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}
