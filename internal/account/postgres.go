package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"cuentas.dev/internal/ids"
)

const (
	pgErrUniqueViolation = "23505"

	emailConstraint = "usuarios_email_key"
	nameConstraint  = "usuarios_nombre_key"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. All statements are parameterized;
// schema lives under migrations/.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var taken bool
	var err error
	if excludeID == "" {
		err = s.db.QueryRowContext(ctx,
			`select exists(select 1 from usuarios where email = $1)`, email).Scan(&taken)
	} else {
		err = s.db.QueryRowContext(ctx,
			`select exists(select 1 from usuarios where email = $1 and id <> $2)`, email, excludeID).Scan(&taken)
	}
	if err != nil {
		return false, err
	}
	return taken, nil
}

func (s *PGStore) NameTaken(ctx context.Context, name string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from usuarios where nombre = $1)`, name).Scan(&taken)
	if err != nil {
		return false, err
	}
	return taken, nil
}

func (s *PGStore) CreateAccount(ctx context.Context, acc Account, roles []string, perms Permissions) (string, error) {
	if acc.ID == "" {
		acc.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into usuarios (id, nombre, email, password, activo) values ($1, $2, $3, $4, true)`,
		acc.ID, acc.Nombre, acc.Email, acc.PasswordHash,
	); err != nil {
		return "", mapUniqueViolation(err)
	}
	if err := insertRoles(ctx, tx, acc.ID, roles); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into permisos (idpermisos, escritura, lectura) values ($1, $2, $3)`,
		acc.ID, perms.Escritura, perms.Lectura,
	); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return acc.ID, nil
}

func (s *PGStore) UpdateAccount(ctx context.Context, acc Account, roles []string, perms Permissions) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`update usuarios set nombre = $1, email = $2, password = $3 where id = $4`,
		acc.Nombre, acc.Email, acc.PasswordHash, acc.ID,
	); err != nil {
		return mapUniqueViolation(err)
	}
	if _, err := tx.ExecContext(ctx, `delete from roles where usuarioid = $1`, acc.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from permisos where idpermisos = $1`, acc.ID); err != nil {
		return err
	}
	if err := insertRoles(ctx, tx, acc.ID, roles); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into permisos (idpermisos, escritura, lectura) values ($1, $2, $3)`,
		acc.ID, perms.Escritura, perms.Lectura,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	var acc Account
	err := s.db.QueryRowContext(ctx,
		`select id, nombre, email, password, activo from usuarios where email = $1`, email,
	).Scan(&acc.ID, &acc.Nombre, &acc.Email, &acc.PasswordHash, &acc.Activo)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return acc, nil
}

func (s *PGStore) RolesFor(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select nombre from roles where usuarioid = $1 order by nombre`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (s *PGStore) PermissionsFor(ctx context.Context, accountID string) (Permissions, error) {
	var perms Permissions
	err := s.db.QueryRowContext(ctx,
		`select escritura, lectura from permisos where idpermisos = $1`, accountID,
	).Scan(&perms.Escritura, &perms.Lectura)
	if errors.Is(err, sql.ErrNoRows) {
		// At most one permission row per account; a missing row reads as no
		// permissions rather than an error.
		return Permissions{}, nil
	}
	if err != nil {
		return Permissions{}, err
	}
	return perms, nil
}

func (s *PGStore) ListActive(ctx context.Context) ([]ListingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.nombre, u.email, r.nombre as rol, p.escritura, p.lectura
		from usuarios u
		inner join roles r on u.id = r.usuarioid
		inner join permisos p on u.id = p.idpermisos
		where u.activo = true
		order by u.nombre, r.nombre
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ListingRow
	for rows.Next() {
		var row ListingRow
		if err := rows.Scan(&row.ID, &row.Nombre, &row.Email, &row.Rol, &row.Escritura, &row.Lectura); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

func (s *PGStore) Profile(ctx context.Context, accountID string) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx,
		`select id, nombre, email from usuarios where id = $1`, accountID,
	).Scan(&p.ID, &p.Nombre, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}

	roles, err := s.RolesFor(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	perms, err := s.PermissionsFor(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	p.Roles = RoleClaims(roles)
	p.Permisos = perms
	return p, nil
}

func (s *PGStore) SetActive(ctx context.Context, accountID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update usuarios set activo = $2 where id = $1`, accountID, active)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func insertRoles(ctx context.Context, tx *sql.Tx, accountID string, roles []string) error {
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx,
			`insert into roles (nombre, usuarioid) values ($1, $2)`, role, accountID,
		); err != nil {
			return fmt.Errorf("insert role %s: %w", role, err)
		}
	}
	return nil
}

// mapUniqueViolation resolves a 23505 on the usuarios table back to the
// duplicate error the pre-checks would have raised, closing the window
// between check and insert.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgErrUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case emailConstraint:
		return ErrDuplicateEmail
	case nameConstraint:
		return ErrDuplicateName
	}
	return err
}
