package models

// User is an operator account allowed to read door status and issue
// recover, clear and override commands over the API.
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
