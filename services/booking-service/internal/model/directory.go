package model

import "time"

type Consultant struct {
	ID          int64
	FullName    string
	Email       string
	Phone       string
	Specialties []string
	JoinDate    string
	Disabled    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Customer struct {
	ID        int64
	FullName  string
	Email     string
	Phone     string
	Notes     string
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
