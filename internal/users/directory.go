// Package users is the in-memory user directory behind login and ticket
// confirmations.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"park-ticketing/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
)

type Directory struct {
	mu     sync.RWMutex
	byID   map[int64]models.User
	nextID int64
	params PasswordParams
	now    func() time.Time
}

func NewDirectory(params PasswordParams) *Directory {
	return &Directory{
		byID:   make(map[int64]models.User),
		nextID: 1,
		params: params,
		now:    time.Now,
	}
}

// SeedDemoUsers adds the demo accounts, all sharing one password.
func (d *Directory) SeedDemoUsers(ctx context.Context, password string) error {
	for _, u := range []struct{ name, email string }{
		{"Ada Lovelace", "ada@example.com"},
		{"Alan Turing", "alan@example.com"},
		{"Joaquin Rodriguez", "joaquin@example.com"},
	} {
		if _, err := d.Add(ctx, u.name, u.email, password); err != nil {
			return fmt.Errorf("failed to seed %s: %w", u.email, err)
		}
	}
	return nil
}

// Add registers a user. The email must be a bare address such as
// ada@example.com; display-name forms are rejected.
func (d *Directory) Add(ctx context.Context, name, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if parsed, err := mail.ParseAddress(email); err != nil || parsed.Address != email {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	var hash string
	if password != "" {
		var err error
		if hash, err = HashPassword(password, d.params); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.byID {
		if u.Email == email {
			return nil, ErrEmailTaken
		}
	}
	user := models.User{
		ID:           d.nextID,
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    d.now().UTC(),
	}
	d.byID[user.ID] = user
	d.nextID++
	return &user, nil
}

func (d *Directory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.byID {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, ErrUserNotFound
}

// All returns users ordered by id.
func (d *Directory) All(ctx context.Context) []models.User {
	d.mu.RLock()
	out := make([]models.User, 0, len(d.byID))
	for _, u := range d.byID {
		out = append(out, u)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := d.FindByEmail(ctx, email)
	if err != nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
