package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/licensor/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn := db.NewTest(t)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{DB: conn, Log: zap.NewNop(), Enforcer: enforcer})
}

func TestRolePermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		role    string
		object  string
		action  string
		allowed bool
	}{
		{"admin creates license", RoleAdmin, ObjectLicense, ActionLicenseCreate, true},
		{"admin ingests events", RoleAdmin, ObjectSubscription, ActionSubscriptionIngest, true},
		{"support views license", RoleSupport, ObjectLicense, ActionLicenseView, true},
		{"support frees domain", RoleSupport, ObjectActivation, ActionActivationDeactivate, true},
		{"support cannot create license", RoleSupport, ObjectLicense, ActionLicenseCreate, false},
		{"support cannot change status", RoleSupport, ObjectLicense, ActionLicenseUpdate, false},
		{"system ingests events", RoleSystem, ObjectSubscription, ActionSubscriptionIngest, true},
		{"system cannot read licenses", RoleSystem, ObjectLicense, ActionLicenseView, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, "token:"+tc.role, tc.role, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestRoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "token:ops", RoleAdmin, ObjectLicense, ActionLicenseCreate))
	err := svc.Authorize(ctx, "token:ops", RoleSupport, ObjectLicense, ActionLicenseCreate)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeRejectsUnknownRole(t *testing.T) {
	svc := newTestService(t)

	err := svc.Authorize(context.Background(), "token:x", "owner", ObjectLicense, ActionLicenseView)
	assert.ErrorIs(t, err, ErrInvalidRole)

	err = svc.Authorize(context.Background(), "", RoleAdmin, ObjectLicense, ActionLicenseView)
	assert.ErrorIs(t, err, ErrInvalidActor)
}
