// internal/model/instructor.go
package model

// Instructor is a directory entry for a messageable user. The
// directory itself is owned by the wider platform; this service only
// reads it to resolve candidate recipient ids.
type Instructor struct {
	ID          string `db:"id" json:"id"`
	Email       string `db:"email" json:"email"`
	DisplayName string `db:"display_name" json:"display_name"`
	ScopeTag    string `db:"scope_tag" json:"scope_tag"`
}
