package account

import "context"

// Store is the persistence contract consumed by Service. Implementations
// return ErrNotFound, ErrDuplicateEmail and ErrDuplicateName from the
// package error set; everything else is an internal failure.
type Store interface {
	// EmailTaken reports whether any account other than excludeID owns the
	// email. An empty excludeID checks all accounts.
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	// NameTaken reports whether any account owns the name.
	NameTaken(ctx context.Context, name string) (bool, error)

	// CreateAccount inserts the account together with its role rows and
	// permission row in one transaction and returns the new id.
	CreateAccount(ctx context.Context, acc Account, roles []string, perms Permissions) (string, error)
	// UpdateAccount overwrites the account row and fully replaces its role
	// rows and permission row in one transaction.
	UpdateAccount(ctx context.Context, acc Account, roles []string, perms Permissions) error

	FindByEmail(ctx context.Context, email string) (Account, error)
	RolesFor(ctx context.Context, accountID string) ([]string, error)
	PermissionsFor(ctx context.Context, accountID string) (Permissions, error)

	// ListActive returns active accounts joined with role and permission rows.
	ListActive(ctx context.Context) ([]ListingRow, error)
	// Profile loads one account with its roles and permissions.
	Profile(ctx context.Context, accountID string) (Profile, error)

	// SetActive flips the soft-delete flag.
	SetActive(ctx context.Context, accountID string, active bool) error
}
