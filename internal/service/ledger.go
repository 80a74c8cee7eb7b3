package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/walletlink/internal/audit"
	"github.com/openclaw/walletlink/internal/database"
	apperrors "github.com/openclaw/walletlink/internal/errors"
	"github.com/openclaw/walletlink/internal/model"
	"github.com/openclaw/walletlink/internal/repository"
)

const exportPageSize = 500

type LedgerConfig struct {
	StartingBalance  int64
	ReferralCredit   int64
	ReferralLinkBase string
}

type OnboardParams struct {
	ID            int64
	Username      string
	DisplayName   string
	ReferrerToken string
}

type OnboardResult struct {
	Created  bool
	Referred bool
}

// LedgerService owns principal balances, wallet addresses and referral edges.
type LedgerService struct {
	db            *database.DB
	principalRepo repository.PrincipalRepository
	referralRepo  repository.ReferralRepository
	cfg           LedgerConfig
}

func NewLedgerService(
	db *database.DB,
	principalRepo repository.PrincipalRepository,
	referralRepo repository.ReferralRepository,
	cfg LedgerConfig,
) *LedgerService {
	return &LedgerService{
		db:            db,
		principalRepo: principalRepo,
		referralRepo:  referralRepo,
		cfg:           cfg,
	}
}

// EnsurePrincipal creates the principal with the starting balance if it does
// not exist yet. An existing principal is left untouched.
func (s *LedgerService) EnsurePrincipal(ctx context.Context, id int64, username, displayName string) (bool, error) {
	if id <= 0 {
		return false, apperrors.InvalidInput("principal id", "must be positive")
	}

	created, err := s.principalRepo.Create(ctx, model.CreatePrincipalParams{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		Balance:     s.cfg.StartingBalance,
	})
	if err != nil {
		return false, apperrors.Database(fmt.Errorf("create principal %d: %w", id, err))
	}

	if created {
		log.Info().Int64("principalId", id).Str("username", username).Msg("principal created")
		audit.Log(ctx, audit.Event{Type: audit.EventPrincipalCreate, PrincipalID: id})
	}
	return created, nil
}

// RegisterReferral inserts the edge and credits the referrer in one
// transaction. Invalid referrals change nothing.
func (s *LedgerService) RegisterReferral(ctx context.Context, referrerID, referralID int64) error {
	if referrerID == referralID {
		return apperrors.InvalidReferral("self referral")
	}

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		principals := s.principalRepo.WithTx(tx)
		referrals := s.referralRepo.WithTx(tx)

		referrer, err := principals.FindByID(ctx, referrerID)
		if err != nil {
			return apperrors.Database(fmt.Errorf("find referrer: %w", err))
		}
		if referrer == nil {
			return apperrors.InvalidReferral("referrer does not exist")
		}

		referral, err := principals.FindByID(ctx, referralID)
		if err != nil {
			return apperrors.Database(fmt.Errorf("find referral: %w", err))
		}
		if referral == nil {
			return apperrors.InvalidReferral("referral does not exist")
		}

		existing, err := referrals.FindByReferralID(ctx, referralID)
		if err != nil {
			return apperrors.Database(fmt.Errorf("find referral edge: %w", err))
		}
		if existing != nil {
			return apperrors.InvalidReferral("principal already referred")
		}

		created, err := referrals.Create(ctx, model.ReferralEdge{
			ReferrerID: referrerID,
			ReferralID: referralID,
			Credit:     s.cfg.ReferralCredit,
		})
		if err != nil {
			return apperrors.Database(fmt.Errorf("create referral edge: %w", err))
		}
		if !created {
			return apperrors.InvalidReferral("principal already referred")
		}

		found, err := principals.AddBalance(ctx, referrerID, s.cfg.ReferralCredit)
		if err != nil {
			return apperrors.Database(fmt.Errorf("credit referrer: %w", err))
		}
		if !found {
			return apperrors.Database(fmt.Errorf("credit referrer %d: row missing", referrerID))
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Int64("referrerId", referrerID).
		Int64("referralId", referralID).
		Int64("credit", s.cfg.ReferralCredit).
		Msg("referral credited")
	audit.Log(ctx, audit.Event{
		Type:        audit.EventReferralCredit,
		PrincipalID: referrerID,
		Details: map[string]interface{}{
			"referral_id": referralID,
			"credit":      s.cfg.ReferralCredit,
		},
	})
	return nil
}

// Onboard handles a first contact: it ensures the principal and, only when
// the principal was just created and carries a referrer token, registers the
// referral. A bad referral is skipped; storage failures are returned.
func (s *LedgerService) Onboard(ctx context.Context, params OnboardParams) (OnboardResult, error) {
	var result OnboardResult

	created, err := s.EnsurePrincipal(ctx, params.ID, params.Username, params.DisplayName)
	if err != nil {
		return result, err
	}
	result.Created = created

	token := strings.TrimSpace(params.ReferrerToken)
	if !created || token == "" {
		return result, nil
	}

	referrerID, err := ParseReferrerToken(token)
	if err == nil {
		err = s.RegisterReferral(ctx, referrerID, params.ID)
	}
	switch {
	case err == nil:
		result.Referred = true
	case apperrors.HasCode(err, apperrors.ErrCodeInvalidReferral):
		log.Warn().Err(err).Int64("principalId", params.ID).Str("token", token).Msg("referral skipped")
		audit.Log(ctx, audit.Event{
			Type:        audit.EventReferralRejected,
			PrincipalID: params.ID,
			Details:     map[string]interface{}{"token": token},
		})
	default:
		return result, err
	}

	return result, nil
}

// ParseReferrerToken accepts the deep link payload: a positive decimal
// principal id, optionally prefixed with "ref_".
func ParseReferrerToken(token string) (int64, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(token), "ref_")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidReferral(fmt.Sprintf("malformed referrer token %q", token))
	}
	return id, nil
}

func (s *LedgerService) GetPrincipal(ctx context.Context, id int64) (*model.Principal, error) {
	principal, err := s.principalRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find principal %d: %w", id, err))
	}
	if principal == nil {
		return nil, apperrors.NotFound("Principal")
	}
	return principal, nil
}

func (s *LedgerService) ListPrincipals(ctx context.Context, limit, offset int) ([]model.Principal, int, error) {
	principals, err := s.principalRepo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(fmt.Errorf("list principals: %w", err))
	}
	total, err := s.principalRepo.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.Database(fmt.Errorf("count principals: %w", err))
	}
	return principals, total, nil
}

func (s *LedgerService) GetBalance(ctx context.Context, id int64) (int64, error) {
	principal, err := s.GetPrincipal(ctx, id)
	if err != nil {
		return 0, err
	}
	return principal.Balance, nil
}

func (s *LedgerService) GetWalletAddress(ctx context.Context, id int64) (fn.Option[string], error) {
	principal, err := s.GetPrincipal(ctx, id)
	if err != nil {
		return fn.None[string](), err
	}
	if !principal.HasWallet() {
		return fn.None[string](), nil
	}
	return fn.Some(principal.WalletAddress), nil
}

// SetWalletAddress is the only write path for wallet addresses. Writing the
// address already stored is a no-op.
func (s *LedgerService) SetWalletAddress(ctx context.Context, id int64, address string) error {
	if address == "" {
		return apperrors.MissingRequired("address")
	}

	changed, err := s.principalRepo.SetWalletAddress(ctx, id, address)
	if err != nil {
		return apperrors.Database(fmt.Errorf("set wallet address for %d: %w", id, err))
	}
	if !changed {
		if _, err := s.GetPrincipal(ctx, id); err != nil {
			return err
		}
		return nil
	}

	log.Info().Int64("principalId", id).Str("address", address).Msg("wallet address stored")
	audit.Log(ctx, audit.Event{
		Type:        audit.EventWalletLinked,
		PrincipalID: id,
		Details:     map[string]interface{}{"address": address},
	})
	return nil
}

func (s *LedgerService) SetSubscribed(ctx context.Context, id int64, subscribed bool) error {
	found, err := s.principalRepo.SetSubscribed(ctx, id, subscribed)
	if err != nil {
		return apperrors.Database(fmt.Errorf("set subscribed for %d: %w", id, err))
	}
	if !found {
		return apperrors.NotFound("Principal")
	}
	return nil
}

func (s *LedgerService) ReferralLink(id int64) string {
	return s.cfg.ReferralLinkBase + strconv.FormatInt(id, 10)
}

func (s *LedgerService) ReferralStats(ctx context.Context, id int64) (*model.ReferralStats, error) {
	if _, err := s.GetPrincipal(ctx, id); err != nil {
		return nil, err
	}
	count, err := s.referralRepo.CountByReferrer(ctx, id)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("count referrals for %d: %w", id, err))
	}
	return &model.ReferralStats{
		Link:         s.ReferralLink(id),
		InvitedCount: count,
	}, nil
}

func (s *LedgerService) ListReferrals(ctx context.Context, referrerID int64, limit, offset int) ([]model.ReferralEdge, error) {
	edges, err := s.referralRepo.FindByReferrer(ctx, referrerID, limit, offset)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list referrals for %d: %w", referrerID, err))
	}
	return edges, nil
}

// ExportReferrals streams every edge to visit, oldest first.
func (s *LedgerService) ExportReferrals(ctx context.Context, visit func(model.ReferralEdge) error) error {
	for offset := 0; ; offset += exportPageSize {
		edges, err := s.referralRepo.FindAll(ctx, exportPageSize, offset)
		if err != nil {
			return apperrors.Database(fmt.Errorf("export referrals: %w", err))
		}
		for _, edge := range edges {
			if err := visit(edge); err != nil {
				return err
			}
		}
		if len(edges) < exportPageSize {
			return nil
		}
	}
}

type LedgerTotals struct {
	model.LedgerTotals
	Referrals int64 `json:"referrals"`
}

func (s *LedgerService) Totals(ctx context.Context) (*LedgerTotals, error) {
	totals, err := s.principalRepo.Totals(ctx)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("principal totals: %w", err))
	}
	referrals, err := s.referralRepo.Count(ctx)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("count referrals: %w", err))
	}
	return &LedgerTotals{LedgerTotals: *totals, Referrals: int64(referrals)}, nil
}
