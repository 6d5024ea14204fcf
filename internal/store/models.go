package store

import "time"

type User struct {
	Username       string
	PasswordHash   string
	Role           string
	ParentUsername *string
	CreatedAt      time.Time
}

type Folder struct {
	ID            string
	Name          string
	OwnerUsername string
	CreatedAt     time.Time
}

// CheckboxItem is a single entry of a note's checklist. Payloads are decoded
// into this shape at the HTTP boundary rather than kept free-form.
type CheckboxItem struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

type Note struct {
	ID            string
	Title         string
	Content       string
	Tags          []string
	CheckboxItems []CheckboxItem
	FolderID      *string
	OwnerUsername string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
