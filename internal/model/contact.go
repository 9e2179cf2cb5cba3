// internal/model/contact.go
package model

import "time"

// Contact is the narrow view of a contact the engine needs: identity,
// addresses, and compliance state. Contact CRUD lives elsewhere.
type Contact struct {
	ID           int        `db:"id" json:"id"`
	TenantID     string     `db:"tenant_id" json:"tenant_id"`
	Phone        string     `db:"phone" json:"phone"`
	Email        string     `db:"email" json:"email"`
	IsSuppressed bool       `db:"is_suppressed" json:"is_suppressed"`
	OptedOutAt   *time.Time `db:"opted_out_at" json:"opted_out_at,omitempty"`
}
