package core

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"sitecontent/pkg/domain"
)

// ErrInvalidCredentials is returned by Authenticate for unknown users and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword returns the bcrypt hash stored as passwordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CreateUser adds an admin user with a hashed password.
func (s *Service) CreateUser(ctx context.Context, username, email, password string) (Record, error) {
	if strings.TrimSpace(username) == "" {
		return nil, domain.ValidationError{Field: "username", Reason: "required"}
	}
	if len(password) < 8 {
		return nil, domain.ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	var taken bool
	if err := s.view(ctx, "find_user", func(v View) error {
		_, taken = findUser(v.List(domain.CollectionUsers), username)
		return nil
	}); err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ValidationError{Field: "username", Reason: "already exists"}
	}
	return s.Create(ctx, domain.CollectionUsers, Input{Fields: map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}})
}

// Authenticate checks name (username or email) and password against the
// users collection.
func (s *Service) Authenticate(ctx context.Context, name, password string) (Record, error) {
	var user Record
	var ok bool
	if err := s.view(ctx, "authenticate", func(v View) error {
		user, ok = findUser(v.List(domain.CollectionUsers), name)
		return nil
	}); err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.String("passwordHash")), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user.Public(), nil
}

// HasUsers reports whether at least one user exists.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	var n int
	err := s.view(ctx, "count_users", func(v View) error {
		n = len(v.List(domain.CollectionUsers))
		return nil
	})
	return n > 0, err
}

func findUser(users []Record, name string) (Record, bool) {
	for _, u := range users {
		if strings.EqualFold(u.String("username"), name) || (u.String("email") != "" && strings.EqualFold(u.String("email"), name)) {
			return u, true
		}
	}
	return nil, false
}
