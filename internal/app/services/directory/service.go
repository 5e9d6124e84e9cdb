// Package directory manages tenant applications and the companies and users
// scoped under them.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/domain/company"
	"github.com/relayline/chathub/pkg/logger"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown login, a
// wrong password, or an inactive user. Callers must not distinguish which.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service implements the directory operations.
type Service struct {
	apps      storage.ApplicationStore
	companies storage.CompanyStore
	users     storage.UserStore
	log       *logger.Logger
}

// New constructs a directory service.
func New(apps storage.ApplicationStore, companies storage.CompanyStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("directory")
	}
	return &Service{apps: apps, companies: companies, users: users, log: log}
}

// RegisterApplication creates a tenant application.
func (s *Service) RegisterApplication(ctx context.Context, code, name string) (application.Application, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return application.Application{}, fmt.Errorf("code and name are required")
	}
	created, err := s.apps.CreateApplication(ctx, application.Application{Code: code, Name: name, Active: true})
	if err != nil {
		return application.Application{}, err
	}
	s.log.WithField("app_code", created.Code).Info("application registered")
	return created, nil
}

// GetApplication fetches an application by code.
func (s *Service) GetApplication(ctx context.Context, code string) (application.Application, error) {
	return s.apps.GetApplicationByCode(ctx, code)
}

// ListApplications lists all applications.
func (s *Service) ListApplications(ctx context.Context) ([]application.Application, error) {
	return s.apps.ListApplications(ctx)
}

// CreateCompany creates a company under an application.
func (s *Service) CreateCompany(ctx context.Context, c company.Company) (company.Company, error) {
	if strings.TrimSpace(c.AppCode) == "" || strings.TrimSpace(c.Name) == "" {
		return company.Company{}, fmt.Errorf("app code and name are required")
	}
	if _, err := s.apps.GetApplicationByCode(ctx, c.AppCode); err != nil {
		return company.Company{}, fmt.Errorf("application validation failed: %w", err)
	}
	c.Active = true
	created, err := s.companies.CreateCompany(ctx, c)
	if err != nil {
		return company.Company{}, err
	}
	s.log.WithField("company_id", created.ID).
		WithField("app_code", created.AppCode).
		Info("company created")
	return created, nil
}

// ListCompanies lists companies under an application.
func (s *Service) ListCompanies(ctx context.Context, appCode string) ([]company.Company, error) {
	return s.companies.ListCompanies(ctx, appCode)
}

// CreateUser creates a user with a hashed password.
func (s *Service) CreateUser(ctx context.Context, u chatuser.User, password string) (chatuser.User, error) {
	if strings.TrimSpace(u.AppCode) == "" || strings.TrimSpace(u.Login) == "" {
		return chatuser.User{}, fmt.Errorf("app code and login are required")
	}
	if _, err := s.apps.GetApplicationByCode(ctx, u.AppCode); err != nil {
		return chatuser.User{}, fmt.Errorf("application validation failed: %w", err)
	}
	if u.CompanyID != "" {
		if _, err := s.companies.GetCompany(ctx, u.CompanyID); err != nil {
			return chatuser.User{}, fmt.Errorf("company validation failed: %w", err)
		}
	}
	if err := u.SetPassword(password); err != nil {
		return chatuser.User{}, fmt.Errorf("hash password: %w", err)
	}
	u.Active = true
	created, err := s.users.CreateUser(ctx, u)
	if err != nil {
		return chatuser.User{}, err
	}
	s.log.WithField("user_id", created.ID).
		WithField("app_code", created.AppCode).
		Info("user created")
	return created, nil
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (chatuser.User, error) {
	return s.users.GetUser(ctx, id)
}

// ListUsers lists users under an application.
func (s *Service) ListUsers(ctx context.Context, appCode string, f chatuser.Filter) ([]chatuser.User, error) {
	return s.users.ListUsers(ctx, appCode, f)
}

// Authenticate verifies a login/password pair under an application.
func (s *Service) Authenticate(ctx context.Context, appCode, login, password string) (chatuser.User, error) {
	u, err := s.users.GetUserByLogin(ctx, appCode, login)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return chatuser.User{}, ErrInvalidCredentials
		}
		return chatuser.User{}, err
	}
	if !u.Active || !u.CheckPassword(password) {
		return chatuser.User{}, ErrInvalidCredentials
	}
	return u, nil
}
