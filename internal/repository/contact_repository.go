package repository

import (
	"database/sql"

	"github.com/unclebandit/message-router/internal/model"
)

// ContactRepository is the engine's read-only window into contacts:
// identity lookup and the compliance/suppression check.
type ContactRepository struct {
	DB *sql.DB
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `
        SELECT id, tenant_id, phone, email, is_suppressed, opted_out_at
        FROM contacts
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var c model.Contact
	if err := row.Scan(&c.ID, &c.TenantID, &c.Phone, &c.Email, &c.IsSuppressed, &c.OptedOutAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

// IsSuppressed reports whether a contact may not be messaged at all.
// Unknown contacts are treated as suppressed.
func (r *ContactRepository) IsSuppressed(contactID int) (bool, error) {
	c, err := r.GetByID(contactID)
	if err != nil {
		return true, err
	}
	if c == nil {
		return true, nil
	}
	return c.IsSuppressed || c.OptedOutAt != nil, nil
}
