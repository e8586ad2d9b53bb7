package client

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	minPasswordLength = 6
)

var (
	ErrMissingFields      = errors.New("client: please fill in all fields")
	ErrPasswordMismatch   = errors.New("client: passwords do not match")
	ErrPasswordTooShort   = errors.New("client: password must be at least 6 characters")
	ErrUserExists         = errors.New("client: user already exists with this email")
	ErrInvalidCredentials = errors.New("client: invalid email or password")
)

// User is a mock account known to the client.
type User struct {
	ID    string
	Name  string
	Email string
	Role  string

	passwordHash []byte
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Directory keeps mock accounts and the signed-in user.
type Directory struct {
	mu      sync.RWMutex
	users   []*User
	byEmail map[string]*User
	current *User
	cost    int
}

func NewDirectory() *Directory {
	return &Directory{byEmail: make(map[string]*User), cost: bcrypt.DefaultCost}
}

// DemoDirectory is seeded with the demo admin and one regular account.
func DemoDirectory() *Directory {
	d := NewDirectory()
	d.cost = bcrypt.MinCost
	_, _ = d.add("Admin User", "admin@marefasource.ai", "admin123", RoleAdmin)
	_, _ = d.add("Ahmed Hassan", "ahmed@example.com", "password123", RoleUser)
	return d
}

func (d *Directory) add(name, email, password, role string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(strings.TrimSpace(email))

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byEmail[key]; exists {
		return nil, ErrUserExists
	}

	u := &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(email),
		Role:         role,
		passwordHash: hash,
	}
	d.users = append(d.users, u)
	d.byEmail[key] = u
	return u, nil
}

// Login signs a user in and returns a copy of the account.
func (d *Directory) Login(email, password string) (User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return User{}, ErrMissingFields
	}

	d.mu.RLock()
	u := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	d.mu.RUnlock()

	if u == nil || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}

	d.mu.Lock()
	d.current = u
	d.mu.Unlock()
	return *u, nil
}

// Signup creates a regular account and signs it in.
func (d *Directory) Signup(name, email, password, confirm string) (User, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" || confirm == "" {
		return User{}, ErrMissingFields
	}
	if password != confirm {
		return User{}, ErrPasswordMismatch
	}
	if len(password) < minPasswordLength {
		return User{}, ErrPasswordTooShort
	}

	u, err := d.add(name, email, password, RoleUser)
	if err != nil {
		return User{}, err
	}

	d.mu.Lock()
	d.current = u
	d.mu.Unlock()
	return *u, nil
}

func (d *Directory) Logout() {
	d.mu.Lock()
	d.current = nil
	d.mu.Unlock()
}

// Current returns the signed-in user, if any.
func (d *Directory) Current() (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return User{}, false
	}
	return *d.current, true
}

// Users returns every account in creation order.
func (d *Directory) Users() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, *u)
	}
	return out
}
