package customers

import (
	"fmt"
	"time"

	"github.com/silaibook/silaibook/internal/shared"
)

// Customer is a shop customer. Mobile is stored in E.164 form.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Mobile    string    `json:"mobile"`
	Category  string    `json:"category,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrNotFound indicates the customer does not exist.
	ErrNotFound = fmt.Errorf("%w: customer", shared.ErrNotFound)
	// ErrAlreadyExists indicates another customer owns the mobile number.
	ErrAlreadyExists = fmt.Errorf("%w: mobile number already registered", shared.ErrConflict)
)
