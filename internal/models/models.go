// Package models provides the domain records Inventra persists and syncs.
// The sync core treats them as opaque JSON; only the data layer looks inside.
package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/uuid"
)

// UUID is a wrapper around string for UUIDv7 record identifiers.
type UUID string

// NewUUID returns a fresh time-ordered identifier.
func NewUUID() UUID {
	return UUID(uuid.New())
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// fieldErrors collects per-field validation failures.
type fieldErrors []string

func (f *fieldErrors) require(cond bool, field, msg string) {
	if !cond {
		*f = append(*f, fmt.Sprintf("%s: %s", field, msg))
	}
}

func (f fieldErrors) err(record string) error {
	if len(f) == 0 {
		return nil
	}
	return errors.Newf(errors.ErrValidation, "invalid %s: %s", record, strings.Join(f, "; "))
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Client is a customer whose sites are inventoried.
type Client struct {
	ID        UUID      `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the fields required by the client form.
func (c *Client) Validate() error {
	var errs fieldErrors
	errs.require(!blank(c.Name), "name", "is required")
	errs.require(!blank(c.Company), "company", "is required")
	errs.require(validEmail(c.Email), "email", "must be a valid address")
	errs.require(!blank(c.Phone), "phone", "is required")
	return errs.err("client")
}

// User is the signed-in account. There is no credential check behind it.
type User struct {
	ID        UUID      `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the fields required to register.
func (u *User) Validate() error {
	var errs fieldErrors
	errs.require(validEmail(u.Email), "email", "must be a valid address")
	errs.require(!blank(u.Name), "name", "is required")
	return errs.err("user")
}
