package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/barberconnect/internal/config"
	"github.com/smallbiznis/barberconnect/internal/observability/metrics"
	"github.com/smallbiznis/barberconnect/internal/paymentgateway/domain"
	stripeapi "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

const (
	opCreateAccount      = "create_account"
	opCreateAccountLink  = "create_account_link"
	opCreateLoginLink    = "create_login_link"
	opRetrieveAccount    = "retrieve_account"
	opDeleteAccount      = "delete_account"
	defaultCallTimeout   = 10 * time.Second
	defaultDashboardPath = "/dashboard"
)

// trustedHosts are the only hosts hosted onboarding and login links may point at.
var trustedHosts = map[string]struct{}{
	"connect.stripe.com": {},
}

type Params struct {
	Config     config.Config
	Policy     *config.ConnectPolicyHolder
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

// Adapter implements domain.Gateway on top of stripe-go.
type Adapter struct {
	client  *stripeapi.Client
	policy  *config.ConnectPolicyHolder
	metrics *metrics.Metrics
	log     *zap.Logger

	timeout time.Duration
	country string
}

func NewAdapter(p Params) *Adapter {
	httpClient := p.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     newLeveledLogger(p.Log),
	}
	if apiURL := strings.TrimRight(strings.TrimSpace(p.Config.Stripe.APIURL), "/"); apiURL != "" {
		backendCfg.URL = stripeapi.String(apiURL)
	}

	timeout := p.Config.Stripe.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	country := strings.ToUpper(strings.TrimSpace(p.Config.Connect.Country))
	if country == "" {
		country = "US"
	}

	return &Adapter{
		client: stripeapi.NewClient(
			p.Config.Stripe.SecretKey,
			stripeapi.WithBackends(stripeapi.NewBackendsWithConfig(backendCfg)),
		),
		policy:  p.Policy,
		metrics: p.Metrics,
		log:     p.Log.Named("paymentgateway.stripe"),
		timeout: timeout,
		country: country,
	}
}

func (a *Adapter) CreateAccount(ctx context.Context, in domain.CreateAccountInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if country == "" {
		country = a.country
	}

	params := &stripeapi.AccountCreateParams{
		Type:    stripeapi.String(string(stripeapi.AccountTypeExpress)),
		Country: stripeapi.String(country),
		Capabilities: &stripeapi.AccountCreateCapabilitiesParams{
			CardPayments: &stripeapi.AccountCreateCapabilitiesCardPaymentsParams{
				Requested: stripeapi.Bool(true),
			},
			Transfers: &stripeapi.AccountCreateCapabilitiesTransfersParams{
				Requested: stripeapi.Bool(true),
			},
		},
		Settings: &stripeapi.AccountCreateSettingsParams{
			Payouts: &stripeapi.AccountCreateSettingsPayoutsParams{
				Schedule: &stripeapi.AccountCreateSettingsPayoutsScheduleParams{
					Interval: stripeapi.String("daily"),
				},
			},
		},
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		params.Email = stripeapi.String(email)
	}
	if ownerID := strings.TrimSpace(in.OwnerID); ownerID != "" {
		params.AddMetadata("owner_id", ownerID)
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = ulid.Make().String()
	}
	params.SetIdempotencyKey(key)

	account, err := a.client.V1Accounts.Create(ctx, params)
	if err != nil {
		return "", a.fail(ctx, opCreateAccount, err)
	}
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return "", a.fail(ctx, opCreateAccount, errors.New("empty account id"))
	}
	return account.ID, nil
}

func (a *Adapter) CreateOnboardingLink(ctx context.Context, accountID, origin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	base := strings.TrimRight(origin, "/") + a.dashboardPath()
	params := &stripeapi.AccountLinkCreateParams{
		Account:    stripeapi.String(accountID),
		RefreshURL: stripeapi.String(base + "?stripe_onboarding=refresh"),
		ReturnURL:  stripeapi.String(base + "?stripe_onboarding=complete"),
		Type:       stripeapi.String("account_onboarding"),
	}

	link, err := a.client.V1AccountLinks.Create(ctx, params)
	if err != nil {
		return "", a.fail(ctx, opCreateAccountLink, err)
	}
	if link == nil {
		return "", a.fail(ctx, opCreateAccountLink, errors.New("empty account link"))
	}
	if err := checkRedirect(link.URL); err != nil {
		return "", a.fail(ctx, opCreateAccountLink, err)
	}
	return link.URL, nil
}

func (a *Adapter) CreateDashboardLoginLink(ctx context.Context, accountID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	link, err := a.client.V1LoginLinks.Create(ctx, &stripeapi.LoginLinkCreateParams{
		Account: stripeapi.String(accountID),
	})
	if err != nil {
		return "", a.fail(ctx, opCreateLoginLink, err)
	}
	if link == nil {
		return "", a.fail(ctx, opCreateLoginLink, errors.New("empty login link"))
	}
	if err := checkRedirect(link.URL); err != nil {
		return "", a.fail(ctx, opCreateLoginLink, err)
	}
	return link.URL, nil
}

func (a *Adapter) RetrieveAccountStatus(ctx context.Context, accountID string) (domain.AccountStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	account, err := a.client.V1Accounts.GetByID(ctx, accountID, nil)
	if err != nil {
		return domain.AccountStatus{}, a.fail(ctx, opRetrieveAccount, err)
	}
	if account == nil {
		return domain.AccountStatus{}, a.fail(ctx, opRetrieveAccount, errors.New("empty account"))
	}
	return domain.AccountStatus{
		DetailsSubmitted: account.DetailsSubmitted,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
	}, nil
}

// DeleteAccount removes a connected account. An account that no longer exists
// counts as deleted.
func (a *Adapter) DeleteAccount(ctx context.Context, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	_, err := a.client.V1Accounts.Delete(ctx, accountID, nil)
	if err == nil {
		return nil
	}
	gwErr := a.fail(ctx, opDeleteAccount, err)
	if gwErr.Kind == domain.KindAccountMissing {
		return nil
	}
	return gwErr
}

func (a *Adapter) dashboardPath() string {
	path := defaultDashboardPath
	if a.policy != nil {
		if p := strings.TrimSpace(a.policy.Get().DashboardPath); p != "" {
			path = p
		}
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (a *Adapter) fail(ctx context.Context, op string, err error) *domain.Error {
	gwErr := classify(op, err)
	a.metrics.RecordGatewayError(ctx, op, string(gwErr.Kind))

	fields := []zap.Field{
		zap.String("op", op),
		zap.String("kind", string(gwErr.Kind)),
		zap.Error(err),
	}
	var apiErr *stripeapi.Error
	if errors.As(err, &apiErr) {
		fields = append(fields,
			zap.String("stripe_code", string(apiErr.Code)),
			zap.String("stripe_type", string(apiErr.Type)),
			zap.String("stripe_request_id", apiErr.RequestID),
			zap.Int("status_code", apiErr.HTTPStatusCode),
		)
	}
	a.log.Warn("stripe call failed", fields...)
	return gwErr
}

func checkRedirect(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return domain.ErrUntrustedRedirect
	}
	if parsed.Scheme != "https" || parsed.User != nil {
		return domain.ErrUntrustedRedirect
	}
	if _, ok := trustedHosts[strings.ToLower(parsed.Host)]; !ok {
		return domain.ErrUntrustedRedirect
	}
	return nil
}
