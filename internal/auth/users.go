package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User is an account belonging to a company, either a guard or an admin.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CompanyID string    `json:"company_id"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// UserRepository persists users and refresh tokens in Postgres.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a repo.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Register creates a user with a bcrypt password hash.
func (r *UserRepository) Register(ctx context.Context, email, password, name, role, companyID string) (User, error) {
	if email == "" || password == "" {
		return User{}, errors.New("email and password required")
	}
	if role != RoleGuard && role != RoleAdmin {
		return User{}, errors.New("role must be guard or admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Role:      role,
		CompanyID: companyID,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, company_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (email) DO NOTHING
		RETURNING created_at
	`, u.ID, u.Email, string(hash), u.Name, u.Role, u.CompanyID)
	if err := row.Scan(&u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

// Authenticate checks credentials and returns the matching user.
func (r *UserRepository) Authenticate(ctx context.Context, email, password string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, role, company_id, created_at
		FROM users WHERE email = $1
	`, email)
	var u User
	var hash string
	if err := row.Scan(&u.ID, &u.Email, &hash, &u.Name, &u.Role, &u.CompanyID, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns a user by id, or nil when not found.
func (r *UserRepository) Get(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, company_id, created_at
		FROM users WHERE id = $1
	`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CompanyID, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *UserRepository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, userID, token, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}
