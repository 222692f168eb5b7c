package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Service orchestrates registration, login, profile access and the
// activation toggle on top of a Store.
type Service struct {
	store Store
	codec *TokenCodec
	cost  int
	ttl   time.Duration
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenTTL overrides the session token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.ttl = ttl
		}
		return nil
	}
}

// WithBcryptCost overrides the password hashing work factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost != 0 && (cost < bcrypt.MinCost || cost > bcrypt.MaxCost) {
			return fmt.Errorf("bcrypt cost %d out of range", cost)
		}
		if cost != 0 {
			s.cost = cost
		}
		return nil
	}
}

// WithClock overrides the time source. Useful for expiry tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
			s.codec.now = fn
		}
		return nil
	}
}

// NewService constructs a Service signing tokens with the given secret.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	codec, err := NewTokenCodec(secret)
	if err != nil {
		return nil, err
	}
	svc := &Service{
		store: store,
		codec: codec,
		cost:  bcrypt.DefaultCost,
		ttl:   DefaultTokenTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// RegisterInput carries everything a new account needs.
type RegisterInput struct {
	Nombre   string
	Email    string
	Password string
	Roles    []string
	Permisos Permissions
}

// UpdateInput rewrites an account wholesale. The password is re-hashed
// unconditionally; there is no keep-existing-password path.
type UpdateInput struct {
	ID       string
	Nombre   string
	Email    string
	Password string
	Roles    []string
	Permisos Permissions
}

// Session is an issued token with its expiry.
type Session struct {
	AccountID string
	Token     string
	ExpiresAt time.Time
}

// AccountsView is the role-dependent result of Accounts: the full listing
// for administrators, the caller's own profile for plain users.
type AccountsView struct {
	Listing []ListingRow
	Profile *Profile
}

// Register creates an account with its roles and permission record and
// returns a session. The token claims embed the input roles and
// permissions as given, not a re-read from the store.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Nombre = strings.TrimSpace(in.Nombre)
	in.Email = normalizeEmail(in.Email)
	if in.Nombre == "" || in.Email == "" || in.Password == "" {
		return Session{}, fmt.Errorf("%w: nombre, email and password are required", ErrInvalidInput)
	}

	taken, err := s.store.EmailTaken(ctx, in.Email, "")
	if err != nil {
		return Session{}, err
	}
	if taken {
		return Session{}, ErrDuplicateEmail
	}
	taken, err = s.store.NameTaken(ctx, in.Nombre)
	if err != nil {
		return Session{}, err
	}
	if taken {
		return Session{}, ErrDuplicateName
	}

	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return Session{}, err
	}
	id, err := s.store.CreateAccount(ctx, Account{
		Nombre:       in.Nombre,
		Email:        in.Email,
		PasswordHash: hash,
		Activo:       true,
	}, in.Roles, in.Permisos)
	if err != nil {
		return Session{}, err
	}
	return s.issue(id, in.Roles, in.Permisos)
}

// Login verifies credentials and issues a session with freshly loaded
// roles and permissions. Unknown email and wrong password are
// indistinguishable from the outside. The active flag is deliberately not
// consulted: a deactivated account can still log in.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	acc, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	roles, err := s.store.RolesFor(ctx, acc.ID)
	if err != nil {
		return Session{}, err
	}
	perms, err := s.store.PermissionsFor(ctx, acc.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issue(acc.ID, roles, perms)
}

// Accounts is the role-gated read. Admin callers get the listing of active
// accounts; plain users get their own profile or ErrNotFound; anyone else
// gets ErrForbidden.
func (s *Service) Accounts(ctx context.Context, requesterID string, roles []RoleClaim) (AccountsView, error) {
	switch {
	case HasRole(roles, RoleAdmin):
		listing, err := s.store.ListActive(ctx)
		if err != nil {
			return AccountsView{}, err
		}
		if listing == nil {
			listing = []ListingRow{}
		}
		return AccountsView{Listing: listing}, nil
	case HasRole(roles, RoleUsuario):
		profile, err := s.store.Profile(ctx, requesterID)
		if err != nil {
			return AccountsView{}, err
		}
		return AccountsView{Profile: &profile}, nil
	default:
		return AccountsView{}, ErrForbidden
	}
}

// Update overwrites the account, re-hashing the password and replacing the
// role and permission rows. Issued tokens keep their old claims until they
// expire; no new token is minted here.
func (s *Service) Update(ctx context.Context, in UpdateInput) error {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	in.Nombre = strings.TrimSpace(in.Nombre)
	in.Email = normalizeEmail(in.Email)

	taken, err := s.store.EmailTaken(ctx, in.Email, in.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateEmail
	}

	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return err
	}
	return s.store.UpdateAccount(ctx, Account{
		ID:           in.ID,
		Nombre:       in.Nombre,
		Email:        in.Email,
		PasswordHash: hash,
	}, in.Roles, in.Permisos)
}

// SetActive flips the soft-delete flag. The Admin gate lives at the HTTP
// boundary; both deactivation and reactivation come through here.
func (s *Service) SetActive(ctx context.Context, accountID string, active bool) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	return s.store.SetActive(ctx, accountID, active)
}

// VerifyToken validates a presented bearer token.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.codec.Verify(token)
}

func (s *Service) issue(accountID string, roles []string, perms Permissions) (Session, error) {
	token, expiresAt, err := s.codec.Issue(accountID, roles, perms, s.ttl)
	if err != nil {
		return Session{}, err
	}
	return Session{AccountID: accountID, Token: token, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
