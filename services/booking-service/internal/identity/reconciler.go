package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Consultants interface {
	GetConsultant(ctx context.Context, id int64) (model.Consultant, error)
	ListConsultants(ctx context.Context, f directory.ListFilter) ([]model.Consultant, error)
}

type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeFailed        Outcome = "failed"
)

// Status labels shown next to each consultant.
const (
	LabelNoAccount = "no_account"
	LabelPending   = "pending"
	LabelActive    = "active"
)

type ItemResult struct {
	ConsultantID int64
	Email        string
	Outcome      Outcome
	Reason       string
}

type SyncReport struct {
	Created       int
	AlreadyExists int
	Skipped       int
	Failed        int
	Errors        []string
	Items         []ItemResult
}

type CreateAccountResult struct {
	Outcome Outcome
	Account Account
	// TemporaryPassword is set only for newly created accounts and never persisted.
	TemporaryPassword string
}

type ConsultantAccount struct {
	Consultant model.Consultant
	Status     string
	Enabled    bool
	Username   string
}

type Config struct {
	// CallTimeout bounds every provider call.
	CallTimeout time.Duration
	WorkerLimit int
	// SyncSendsInvite controls whether sync-all asks the provider to mail invitations.
	SyncSendsInvite bool
	PasswordLength  int
}

type Reconciler struct {
	provider    Provider
	consultants Consultants
	logger      *slog.Logger
	cfg         Config
	tracer      trace.Tracer
}

func NewReconciler(provider Provider, consultants Consultants, logger *slog.Logger, cfg Config) *Reconciler {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.WorkerLimit <= 0 {
		cfg.WorkerLimit = 4
	}
	if cfg.PasswordLength <= 0 {
		cfg.PasswordLength = 14
	}
	return &Reconciler{
		provider:    provider,
		consultants: consultants,
		logger:      logger,
		cfg:         cfg,
		tracer:      otel.Tracer("booking-service/identity"),
	}
}

func (r *Reconciler) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAccountExists):
		return err
	default:
		return apperr.Wrap(apperr.KindExternalService, err, "identity provider %s failed", op)
	}
}

func (r *Reconciler) find(ctx context.Context, email string) (Account, error) {
	var acct Account
	err := r.call(ctx, "lookup", func(ctx context.Context) error {
		var err error
		acct, err = r.provider.FindByEmail(ctx, email)
		return err
	})
	return acct, err
}

func validEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", apperr.Validation("invalid email %q", raw)
	}
	return email, nil
}

// CreateAccount creates the provider account for a consultant, or reports it already exists.
func (r *Reconciler) CreateAccount(ctx context.Context, email string, consultantID int64, sendInvite bool) (res CreateAccountResult, err error) {
	ctx, span := r.tracer.Start(ctx, "identity.CreateAccount", trace.WithAttributes(attribute.Int64("consultant.id", consultantID)))
	defer func() { finish(span, err) }()

	email, err = validEmail(email)
	if err != nil {
		return CreateAccountResult{}, err
	}
	if consultantID <= 0 {
		return CreateAccountResult{}, apperr.Validation("consultant_id is required")
	}
	if _, err := r.consultants.GetConsultant(ctx, consultantID); err != nil {
		return CreateAccountResult{}, err
	}
	return r.createOrSkip(ctx, email, consultantID, sendInvite)
}

func (r *Reconciler) createOrSkip(ctx context.Context, email string, consultantID int64, sendInvite bool) (CreateAccountResult, error) {
	existing, err := r.find(ctx, email)
	if err == nil {
		return CreateAccountResult{Outcome: OutcomeAlreadyExists, Account: existing}, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return CreateAccountResult{}, err
	}

	password, err := GeneratePassword(r.cfg.PasswordLength)
	if err != nil {
		return CreateAccountResult{}, apperr.Wrap(apperr.KindInternal, err, "generate password")
	}
	var created Account
	err = r.call(ctx, "create", func(ctx context.Context) error {
		var err error
		created, err = r.provider.CreateAccount(ctx, CreateInput{
			Email:             email,
			ConsultantID:      consultantID,
			TemporaryPassword: password,
			SendInvite:        sendInvite,
		})
		return err
	})
	if errors.Is(err, ErrAccountExists) {
		return CreateAccountResult{Outcome: OutcomeAlreadyExists}, nil
	}
	if err != nil {
		return CreateAccountResult{}, err
	}
	r.logger.Info("identity account created", "consultant_id", consultantID, "username", created.Username)
	return CreateAccountResult{Outcome: OutcomeCreated, Account: created, TemporaryPassword: password}, nil
}

// ResetPassword issues a new temporary password and returns it to the caller only.
func (r *Reconciler) ResetPassword(ctx context.Context, email string) (password string, err error) {
	ctx, span := r.tracer.Start(ctx, "identity.ResetPassword")
	defer func() { finish(span, err) }()

	email, err = validEmail(email)
	if err != nil {
		return "", err
	}
	acct, err := r.existing(ctx, email)
	if err != nil {
		return "", err
	}
	password, err = GeneratePassword(r.cfg.PasswordLength)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "generate password")
	}
	err = r.call(ctx, "password reset", func(ctx context.Context) error {
		return r.provider.SetTemporaryPassword(ctx, acct.Username, password)
	})
	if err != nil {
		return "", notFoundAsApp(err, email)
	}
	r.logger.Info("identity password reset", "username", acct.Username)
	return password, nil
}

// DeleteAccount removes the provider account; the consultant row is untouched.
func (r *Reconciler) DeleteAccount(ctx context.Context, email string) (err error) {
	ctx, span := r.tracer.Start(ctx, "identity.DeleteAccount")
	defer func() { finish(span, err) }()

	email, err = validEmail(email)
	if err != nil {
		return err
	}
	acct, err := r.existing(ctx, email)
	if err != nil {
		return err
	}
	err = r.call(ctx, "delete", func(ctx context.Context) error {
		return r.provider.DeleteAccount(ctx, acct.Username)
	})
	if err != nil {
		return notFoundAsApp(err, email)
	}
	r.logger.Info("identity account deleted", "username", acct.Username)
	return nil
}

func (r *Reconciler) existing(ctx context.Context, email string) (Account, error) {
	acct, err := r.find(ctx, email)
	if err != nil {
		return Account{}, notFoundAsApp(err, email)
	}
	return acct, nil
}

func notFoundAsApp(err error, email string) error {
	if errors.Is(err, ErrAccountNotFound) {
		return apperr.Wrap(apperr.KindNotFound, err, "no identity account for %s", email)
	}
	return err
}

// SyncAll runs create-or-skip for every consultant with a bounded pool. One consultant failing
// never stops the others; callers read the counters.
func (r *Reconciler) SyncAll(ctx context.Context) (report SyncReport, err error) {
	ctx, span := r.tracer.Start(ctx, "identity.SyncAll")
	defer func() { finish(span, err) }()

	consultants, err := r.consultants.ListConsultants(ctx, directory.ListFilter{IncludeDisabled: true})
	if err != nil {
		return SyncReport{}, apperr.Wrap(apperr.KindInternal, err, "list consultants")
	}

	items := make([]ItemResult, len(consultants))
	var g errgroup.Group
	g.SetLimit(r.cfg.WorkerLimit)
	for i, c := range consultants {
		items[i] = ItemResult{ConsultantID: c.ID, Email: c.Email}
		if strings.TrimSpace(c.Email) == "" {
			items[i].Outcome, items[i].Reason = OutcomeSkipped, "no email"
			continue
		}
		if c.Disabled {
			items[i].Outcome, items[i].Reason = OutcomeSkipped, "disabled"
			continue
		}
		g.Go(func() error {
			res, err := r.createOrSkip(ctx, strings.ToLower(c.Email), c.ID, r.cfg.SyncSendsInvite)
			if err != nil {
				items[i].Outcome, items[i].Reason = OutcomeFailed, apperr.PublicMessage(err)
				r.logger.Warn("identity sync item failed", "consultant_id", c.ID, "err", err)
				return nil
			}
			items[i].Outcome = res.Outcome
			return nil
		})
	}
	_ = g.Wait()

	report = SyncReport{Errors: []string{}, Items: items}
	for _, it := range items {
		switch it.Outcome {
		case OutcomeCreated:
			report.Created++
		case OutcomeAlreadyExists:
			report.AlreadyExists++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFailed:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", it.Email, it.Reason))
		}
	}
	span.SetAttributes(
		attribute.Int("sync.created", report.Created),
		attribute.Int("sync.already_exists", report.AlreadyExists),
		attribute.Int("sync.skipped", report.Skipped),
		attribute.Int("sync.failed", report.Failed),
	)
	r.logger.Info("identity sync finished",
		"created", report.Created, "already_exists", report.AlreadyExists, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// AccountStatuses joins consultants with provider accounts on lower-cased email.
func (r *Reconciler) AccountStatuses(ctx context.Context, f directory.ListFilter) (out []ConsultantAccount, err error) {
	ctx, span := r.tracer.Start(ctx, "identity.AccountStatuses")
	defer func() { finish(span, err) }()

	consultants, err := r.consultants.ListConsultants(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "list consultants")
	}
	var accounts []Account
	err = r.call(ctx, "list", func(ctx context.Context) error {
		var err error
		accounts, err = r.provider.ListAccounts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	byEmail := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		byEmail[strings.ToLower(a.Email)] = a
	}
	out = make([]ConsultantAccount, 0, len(consultants))
	for _, c := range consultants {
		ca := ConsultantAccount{Consultant: c, Status: LabelNoAccount}
		if a, ok := byEmail[strings.ToLower(c.Email)]; ok && c.Email != "" {
			ca.Status = StatusLabel(a.Status)
			ca.Enabled = a.Enabled
			ca.Username = a.Username
		}
		out = append(out, ca)
	}
	return out, nil
}

func StatusLabel(providerStatus string) string {
	switch providerStatus {
	case StatusForceChangePassword:
		return LabelPending
	case StatusConfirmed:
		return LabelActive
	default:
		return providerStatus
	}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}
