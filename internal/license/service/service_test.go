package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	auditrepository "github.com/smallbiznis/licensor/internal/audit/repository"
	auditservice "github.com/smallbiznis/licensor/internal/audit/service"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/internal/license/repository"
	productdomain "github.com/smallbiznis/licensor/internal/product/domain"
	productrepository "github.com/smallbiznis/licensor/internal/product/repository"
	"github.com/smallbiznis/licensor/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	svc    *Service
	clock  *clock.FakeClock
	policy *config.PolicyHolder
}

func newFixture(t *testing.T, opts ...func(*Params)) *fixture {
	t.Helper()
	conn := db.NewTest(t,
		&productdomain.Product{},
		&productdomain.Package{},
		&domain.License{},
		&domain.Activation{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	policy := config.NewStaticPolicyHolder(config.DefaultLicensePolicy())

	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})

	params := Params{
		DB:          conn,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Licenses:    repository.ProvideLicenses(),
		Activations: repository.ProvideActivations(),
		Products:    productrepository.Provide(),
		Audit:       audit,
		Policy:      policy,
	}
	for _, opt := range opts {
		opt(&params)
	}

	seedCatalog(t, conn, params.Products)
	return &fixture{db: conn, svc: New(params), clock: clk, policy: policy}
}

func seedCatalog(t *testing.T, conn *gorm.DB, products productdomain.Repository) {
	t.Helper()
	ctx := context.Background()
	one, three := 1, 3
	catalog := []struct {
		id    int64
		slug  string
		pkgs  map[string]*int
		pkgID int64
	}{
		{id: 1, slug: "seo-toolkit", pkgs: map[string]*int{"single": &one, "agency": nil, "team": &three}, pkgID: 10},
		{id: 2, slug: "form-builder", pkgs: map[string]*int{"single": &one}, pkgID: 20},
	}
	for _, p := range catalog {
		require.NoError(t, products.Create(ctx, conn, &productdomain.Product{
			ID: p.id, Slug: p.slug, Name: p.slug + " name", Active: true, CreatedAt: testNow, UpdatedAt: testNow,
		}))
		id := p.pkgID
		for slug, limit := range p.pkgs {
			require.NoError(t, products.CreatePackage(ctx, conn, &productdomain.Package{
				ID: id, ProductID: p.id, Slug: slug, Name: slug + " plan", DomainLimit: limit, Active: true,
				CreatedAt: testNow, UpdatedAt: testNow,
			}))
			id++
		}
	}
}

func (f *fixture) license(t *testing.T, pkg string, mutate ...func(*domain.CreateLicenseRequest)) string {
	t.Helper()
	req := domain.CreateLicenseRequest{ProductSlug: "seo-toolkit", PackageSlug: pkg}
	for _, m := range mutate {
		m(&req)
	}
	resp, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return resp.LicenseKey
}

func req(key, domainName string) domain.Request {
	return domain.Request{LicenseKey: key, ProductSlug: "seo-toolkit", Domain: domainName, IPAddress: "203.0.113.7", UserAgent: "wp-plugin/2.1"}
}

func TestSingleDomainLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.license(t, "single")

	first, err := f.svc.Activate(ctx, req(key, "https://WWW.Foo.com/"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, first.Outcome)
	assert.Equal(t, "foo.com", first.Activation.Domain)
	assert.Equal(t, int64(1), first.License.Activations.Used)

	f.clock.Advance(time.Minute)
	second, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyActive, second.Outcome)
	assert.Contains(t, second.Message, "already activated")
	assert.Equal(t, first.Activation.ID, second.Activation.ID)
	assert.True(t, first.Activation.ActivatedAt.Equal(second.Activation.ActivatedAt))

	var rows int64
	require.NoError(t, f.db.Model(&domain.Activation{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	_, err = f.svc.Activate(ctx, req(key, "bar.com"))
	require.ErrorIs(t, err, domain.ErrDomainLimitReached)
	assert.Contains(t, domain.MessageOf(err), "1 active domain")

	_, err = f.svc.Deactivate(ctx, req(key, "foo.com"))
	require.NoError(t, err)

	bar, err := f.svc.Activate(ctx, req(key, "bar.com"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, bar.Outcome)

	check, err := f.svc.Check(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	assert.False(t, check.Activated)
	assert.True(t, check.LicenseValid)
	assert.Nil(t, check.License)
}

func TestConcurrentActivationsNeverExceedLimit(t *testing.T) {
	f := newFixture(t)
	key := f.license(t, "team")

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
		other    []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Activate(context.Background(), req(key, "site"+string(rune('a'+i))+".example.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case isLimitErr(err):
				rejected++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 3, created)
	assert.Equal(t, attempts-3, rejected)

	resp, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.ActiveDomains)
}

func isLimitErr(err error) bool {
	return errorCode(err) == domain.ErrDomainLimitReached.Error()
}

func TestDeactivateTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.license(t, "single")

	_, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)

	_, err = f.svc.Deactivate(ctx, req(key, "https://foo.com/wp-admin"))
	require.NoError(t, err)

	_, err = f.svc.Deactivate(ctx, req(key, "foo.com"))
	require.ErrorIs(t, err, domain.ErrActivationNotFound)

	_, err = f.svc.Deactivate(ctx, req(key, "never.com"))
	require.ErrorIs(t, err, domain.ErrActivationNotFound)
}

func TestReactivationKeepsActivatedAtAndBypassesLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.license(t, "single")

	first, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	_, err = f.svc.Deactivate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, req(key, "bar.com"))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	again, err := f.svc.Activate(ctx, req(key, "www.foo.com"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReactivated, again.Outcome)
	assert.Equal(t, first.Activation.ID, again.Activation.ID)
	assert.True(t, first.Activation.ActivatedAt.Equal(again.Activation.ActivatedAt))
	assert.Nil(t, again.Activation.DeactivatedAt)
	assert.Equal(t, int64(2), again.License.Activations.Used)
}

func TestReactivationHonoursLimitWhenPolicyDisablesBypass(t *testing.T) {
	f := newFixture(t)
	policy := config.DefaultLicensePolicy()
	policy.ReactivationBypassesLimit = false
	f.policy.Set(policy)
	ctx := context.Background()
	key := f.license(t, "single")

	_, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	_, err = f.svc.Deactivate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, req(key, "bar.com"))
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, req(key, "foo.com"))
	require.ErrorIs(t, err, domain.ErrDomainLimitReached)
}

func TestWrongProductLooksLikeUnknownKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.license(t, "agency")

	wrong := req(key, "foo.com")
	wrong.ProductSlug = "form-builder"
	unknown := req("ZZZZZZZZ-ZZZZZZZZ-ZZZZZZZZ-ZZZZZZZZ", "foo.com")

	for _, r := range []domain.Request{wrong, unknown} {
		_, verr := f.svc.Validate(ctx, r)
		_, aerr := f.svc.Activate(ctx, r)
		_, cerr := f.svc.Check(ctx, r)
		for _, err := range []error{verr, aerr, cerr} {
			require.ErrorIs(t, err, domain.ErrLicenseNotFound)
			assert.Equal(t, "Invalid license key or product.", domain.MessageOf(err))
		}
	}
}

func TestSuspendedLicense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.license(t, "team")

	_, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, key, "suspended")
	require.NoError(t, err)

	assertInactiveEffects(t, f, key, "Suspended")
}

func TestPastExpiryActsLikeInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expires := testNow.Add(24 * time.Hour)
	key := f.license(t, "team", func(r *domain.CreateLicenseRequest) { r.ExpiresAt = &expires })

	_, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	f.clock.Advance(48 * time.Hour)

	assertInactiveEffects(t, f, key, "Expired")
}

func assertInactiveEffects(t *testing.T, f *fixture, key, label string) {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.Activate(ctx, req(key, "bar.com"))
	require.ErrorIs(t, err, domain.ErrLicenseInactive)
	assert.Contains(t, domain.MessageOf(err), "Current status: "+label)

	check, err := f.svc.Check(ctx, req(key, "bar.com"))
	require.NoError(t, err)
	assert.False(t, check.Activated)
	assert.False(t, check.LicenseValid)

	_, err = f.svc.Deactivate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
}

func TestValidateTouchesLastValidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.license(t, "agency")

	res, err := f.svc.Validate(ctx, domain.Request{LicenseKey: " " + key + " ", ProductSlug: "SEO-Toolkit"})
	require.NoError(t, err)
	assert.Nil(t, res.License.Activations.Limit)
	assert.Nil(t, res.License.Activations.Remaining)
	assert.Equal(t, "seo-toolkit name", res.License.Product)
	assert.Equal(t, "agency plan", res.License.Package)

	got, err := f.svc.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got.LastValidatedAt)
	assert.True(t, got.LastValidatedAt.Equal(testNow))
}

func TestCheckActivatedReturnsSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.license(t, "team")

	_, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	check, err := f.svc.Check(ctx, req(key, "http://foo.com:8080"))
	require.NoError(t, err)
	assert.True(t, check.Activated)
	assert.True(t, check.LicenseValid)
	require.NotNil(t, check.License)
	require.NotNil(t, check.License.Activations.Remaining)
	assert.Equal(t, int64(2), *check.License.Activations.Remaining)

	acts, err := f.svc.ListActivations(ctx, key, true)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	require.NotNil(t, acts[0].LastCheckedAt)
	assert.True(t, acts[0].LastCheckedAt.Equal(testNow.Add(time.Minute)))
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Activate(ctx, domain.Request{ProductSlug: "seo-toolkit", Domain: "foo.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidLicenseKey)

	_, err = f.svc.Check(ctx, domain.Request{LicenseKey: "AB12CD34-EF56GH78-IJ90KL12-MN34OP56", Domain: "foo.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidProductSlug)

	_, err = f.svc.Activate(ctx, req("AB12CD34-EF56GH78-IJ90KL12-MN34OP56", "https://www./"))
	assert.ErrorIs(t, err, domain.ErrInvalidDomain)
}

func TestGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expires := testNow.Add(time.Hour)
	key := f.license(t, "team", func(r *domain.CreateLicenseRequest) { r.ExpiresAt = &expires })

	_, err := f.svc.Guard(ctx, req(key, "foo.com"))
	require.ErrorIs(t, err, domain.ErrActivationNotFound)

	_, err = f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)

	res, err := f.svc.Guard(ctx, req(key, "WWW.FOO.COM"))
	require.NoError(t, err)
	assert.Equal(t, "foo.com", res.Domain)
	assert.Equal(t, key, res.License.LicenseKey)
	assert.True(t, res.Activation.IsActive())

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Guard(ctx, req(key, "foo.com"))
	require.ErrorIs(t, err, domain.ErrLicenseExpired)

	_, err = f.svc.SetStatus(ctx, key, "cancelled")
	require.NoError(t, err)
	_, err = f.svc.Guard(ctx, req(key, "foo.com"))
	require.ErrorIs(t, err, domain.ErrLicenseInactive)
}

// staleActivations hides the first lookup so the insert collides with a row
// written by a concurrent request.
type staleActivations struct {
	domain.ActivationRepository
	mu     sync.Mutex
	hidden bool
}

func (s *staleActivations) FindByLicenseAndDomain(ctx context.Context, conn *gorm.DB, licenseID int64, domainName string) (*domain.Activation, error) {
	s.mu.Lock()
	hide := !s.hidden
	s.hidden = true
	s.mu.Unlock()
	if hide {
		return nil, nil
	}
	return s.ActivationRepository.FindByLicenseAndDomain(ctx, conn, licenseID, domainName)
}

func TestActivateRetriesAfterDuplicateInsert(t *testing.T) {
	stale := &staleActivations{ActivationRepository: repository.ProvideActivations(), hidden: true}
	f := newFixture(t, func(p *Params) { p.Activations = stale })
	ctx := context.Background()
	key := f.license(t, "team")

	_, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)

	stale.mu.Lock()
	stale.hidden = false
	stale.mu.Unlock()

	res, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyActive, res.Outcome)
}

func TestActivationsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.license(t, "team")

	_, err := f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	_, err = f.svc.Deactivate(ctx, req(key, "foo.com"))
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, req(key, "foo.com"))
	require.NoError(t, err)

	var actions []string
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Order("created_at asc, id asc").Pluck("action", &actions).Error)
	assert.Equal(t, []string{
		auditdomain.ActionLicenseCreated,
		auditdomain.ActionDomainActivated,
		auditdomain.ActionDomainDeactivated,
		auditdomain.ActionDomainReactivated,
	}, actions)
}
