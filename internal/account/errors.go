package account

import "errors"

var (
	ErrDuplicateEmail     = errors.New("account: email already registered")
	ErrDuplicateName      = errors.New("account: name already registered")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	ErrNotFound           = errors.New("account: not found")
	ErrForbidden          = errors.New("account: forbidden")
	ErrInvalidInput       = errors.New("account: invalid input")
)
