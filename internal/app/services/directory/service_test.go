package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/app/storage/memory"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/domain/company"
	"github.com/relayline/chathub/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, store, logger.Nop())
	_, err := svc.RegisterApplication(context.Background(), "acme", "Acme Corp")
	require.NoError(t, err)
	return svc, store
}

func TestRegisterApplicationValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RegisterApplication(context.Background(), "  ", "Name")
	assert.Error(t, err)

	_, err = svc.RegisterApplication(context.Background(), "code", "")
	assert.Error(t, err)
}

func TestCreateCompanyRequiresKnownApplication(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateCompany(context.Background(), company.Company{
		AppCode: "globex", Name: "Globex HQ",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	created, err := svc.CreateCompany(context.Background(), company.Company{
		AppCode: "acme", Name: "Acme HQ",
	})
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.NotEmpty(t, created.ID)
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.CreateUser(context.Background(), chatuser.User{
		AppCode: "acme", Login: "alice", DisplayName: "Alice",
	}, "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, created.PasswordHash)
	assert.NotContains(t, created.PasswordHash, "s3cret-pass")
	assert.True(t, created.CheckPassword("s3cret-pass"))
	assert.False(t, created.CheckPassword("wrong"))
}

func TestCreateUserRejectsUnknownCompany(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateUser(context.Background(), chatuser.User{
		AppCode: "acme", Login: "alice", DisplayName: "Alice", CompanyID: "missing",
	}, "s3cret-pass")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, chatuser.User{
		AppCode: "acme", Login: "alice", DisplayName: "Alice",
	}, "s3cret-pass")
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "acme", "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = svc.Authenticate(ctx, "acme", "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "acme", "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "globex", "alice", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
