package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/richardliu001/token-ledger/internal/checkout"
	"github.com/richardliu001/token-ledger/internal/model"
	"github.com/richardliu001/token-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Direction selects the sign of a balance adjustment.
type Direction string

const (
	DirectionAdd      Direction = "add"
	DirectionSubtract Direction = "subtract"
)

// Credit computation modes for checkout-session transactions.
const (
	// CreditModeProductID counts quantities of line items whose price id
	// matches the configured product id.
	CreditModeProductID = "product_id"
	// CreditModeTokenMetadata multiplies each line item's quantity by the
	// "tokens" value in its price metadata.
	CreditModeTokenMetadata = "token_metadata"
)

var (
	// ErrInvalidAmount means non-positive amount passed.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidDirection means the direction tag was neither add nor subtract.
	ErrInvalidDirection = errors.New("direction must be add or subtract")
	// ErrInsufficientFunds is returned when a subtraction would take the
	// balance below zero under the strict policy.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnsupportedTransactionType is returned during resolution of an
	// unknown transaction type.
	ErrUnsupportedTransactionType = errors.New("unsupported transaction type")
	// ErrTransactionNotFound means no transaction matches the given id.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrExternalObjectNotFound means the fetcher had no object for the
	// transaction's external id.
	ErrExternalObjectNotFound = errors.New("external object not found")
)

// Options configures ledger policy.
type Options struct {
	// ProductID is the price id credited in CreditModeProductID.
	ProductID string
	// CreditMode selects how checkout line items convert to credit.
	// Defaults to CreditModeProductID.
	CreditMode string
	// AllowNegative permits balances below zero. Off by default.
	AllowNegative bool
}

// LedgerService owns wallet balances and transaction records.
type LedgerService struct {
	repo    repo.RepositoryInterface
	fetcher checkout.ObjectFetcher
	opts    Options
	log     *zap.SugaredLogger
}

// NewLedgerService returns LedgerService.
func NewLedgerService(r repo.RepositoryInterface, fetcher checkout.ObjectFetcher, opts Options, logger *zap.SugaredLogger) *LedgerService {
	if opts.CreditMode == "" {
		opts.CreditMode = CreditModeProductID
	}
	return &LedgerService{repo: r, fetcher: fetcher, opts: opts, log: logger}
}

// OpenWallet creates a zero-balance wallet for the user if none exists and
// returns the current wallet either way.
func (s *LedgerService) OpenWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	w := &model.Wallet{UserID: userID, Balance: decimal.Zero}
	if err := s.repo.CreateWallet(ctx, s.repo.DB(ctx), w); err != nil {
		return nil, err
	}
	return s.repo.GetWallet(ctx, userID)
}

// GetWallet returns the user's wallet, or nil when none exists.
func (s *LedgerService) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return s.repo.GetWallet(ctx, userID)
}

// GetBalance returns current wallet balance, cache first.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, userID)
	if err == nil {
		return bal, nil
	}
	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if w == nil {
		return decimal.Zero, gorm.ErrRecordNotFound
	}
	_ = s.repo.CacheBalance(ctx, userID, w.Balance)
	return w.Balance, nil
}

// DeleteWallet removes the user's wallet.
func (s *LedgerService) DeleteWallet(ctx context.Context, userID string) error {
	return s.repo.DeleteWallet(ctx, userID)
}

// AdjustBalance applies a signed delta to the user's wallet, creating the
// wallet at zero if absent. Under the strict policy a subtraction that
// would take the balance below zero fails with ErrInsufficientFunds and
// nothing is written.
func (s *LedgerService) AdjustBalance(ctx context.Context, userID string, amount decimal.Decimal, direction Direction) (*model.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if direction != DirectionAdd && direction != DirectionSubtract {
		return nil, ErrInvalidDirection
	}
	var updated *model.Wallet
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.repo.GetWalletForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				w = &model.Wallet{UserID: userID, Balance: decimal.Zero}
				if err := s.repo.CreateWallet(ctx, tx, w); err != nil {
					return err
				}
			} else {
				return err
			}
		}

		newBal := w.Balance.Add(amount)
		if direction == DirectionSubtract {
			newBal = w.Balance.Sub(amount)
		}
		if newBal.IsNegative() && !s.opts.AllowNegative {
			return ErrInsufficientFunds
		}
		if err := s.repo.UpdateWallet(ctx, tx, userID, newBal, w.Version); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"user_id": userID, "direction": direction, "amount": amount, "balance": newBal,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Wallet", AggregateID: userID, EventType: "BalanceAdjusted", Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, userID, newBal); err != nil {
			s.log.Warn(err)
		}
		updated = &model.Wallet{UserID: userID, Balance: newBal, Version: w.Version + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateTransactionInput carries the fields of a new transaction record.
type CreateTransactionInput struct {
	UserID      string
	Type        string
	Description string
	ExternalID  string
	// Balance pre-declares the amount for SPEND_BALANCE transactions and is
	// ignored for externally resolved types.
	Balance decimal.Decimal
}

// CreateTransaction inserts a PENDING transaction record.
func (s *LedgerService) CreateTransaction(ctx context.Context, in CreateTransactionInput) (*model.Transaction, error) {
	if in.Type == model.TypeSpendBalance && in.Balance.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	t := &model.Transaction{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Description: in.Description,
		Type:        in.Type,
		ExternalID:  in.ExternalID,
		Status:      model.StatusPending,
		Balance:     in.Balance,
	}
	if err := s.repo.CreateTransaction(ctx, s.repo.DB(ctx), t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTransactions pages a user's transactions, newest first.
func (s *LedgerService) GetTransactions(ctx context.Context, userID string, start, pageSize int) ([]model.Transaction, error) {
	if start < 0 {
		start = 0
	}
	if pageSize <= 0 {
		pageSize = 25
	}
	return s.repo.ListTransactions(ctx, userID, start, pageSize)
}

// GetTransactionByID returns the transaction, or nil when absent.
func (s *LedgerService) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	return s.repo.GetTransactionByID(ctx, id)
}

// GetTransactionByExternalID returns the most recently created transaction
// carrying the external id, or nil when none does.
func (s *LedgerService) GetTransactionByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	return s.repo.GetTransactionByExternalID(ctx, externalID)
}

// SetTransactionStatus writes status directly (administrative).
func (s *LedgerService) SetTransactionStatus(ctx context.Context, id, status string) error {
	return s.repo.SetTransactionStatus(ctx, id, status)
}

// DeleteTransaction removes the record (administrative).
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	return s.repo.DeleteTransaction(ctx, id)
}

// ResolveTransaction computes and applies the transaction's financial
// effect and finalizes its status. A transaction that is no longer PENDING
// is returned unchanged; the side effect is applied at most once. Failures
// during resolution do not propagate, they leave the transaction FAILED.
func (s *LedgerService) ResolveTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	t, err := s.repo.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if t.Status != model.StatusPending {
		return t, nil
	}

	// Claim the transaction before touching the wallet so a concurrent
	// resolver cannot double-apply the effect.
	claimed, err := s.repo.TransitionTransaction(ctx, s.repo.DB(ctx), t.ID, model.StatusPending, model.StatusInProgress)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return s.repo.GetTransactionByID(ctx, transactionID)
	}

	status := model.StatusComplete
	if applyErr := s.apply(ctx, t); applyErr != nil {
		s.log.Warnf("resolve transaction %s: %v", t.ID, applyErr)
		status = model.StatusFailed
	}
	if err := s.repo.SetTransactionStatus(ctx, t.ID, status); err != nil {
		// The claim already moved the record to IN_PROGRESS and the balance
		// effect may have been applied; the record stays IN_PROGRESS until
		// an operator intervenes, so log the stranded id loudly.
		s.log.Errorf("transaction %s stranded IN_PROGRESS, wanted %s: %v", t.ID, status, err)
		return nil, err
	}
	t.Status = status

	payload, _ := json.Marshal(map[string]interface{}{
		"transaction_id": t.ID, "user_id": t.UserID, "type": t.Type, "status": status,
	})
	evt := &model.OutboxEvent{
		Aggregate: "Transaction", AggregateID: t.ID, EventType: "TransactionResolved", Payload: string(payload),
	}
	if err := s.repo.CreateOutboxEvent(ctx, s.repo.DB(ctx), evt); err != nil {
		s.log.Warn(err)
	}
	return t, nil
}

// apply dispatches on transaction type and performs the balance change.
func (s *LedgerService) apply(ctx context.Context, t *model.Transaction) error {
	switch t.Type {
	case model.TypeCheckoutSession:
		sess, err := s.fetcher.FetchCheckoutSession(ctx, t.ExternalID)
		if err != nil {
			return err
		}
		if sess == nil {
			// Fetchers may legally return no object for an unknown id;
			// that fails the resolution rather than the process.
			return ErrExternalObjectNotFound
		}
		credit := s.checkoutCredit(sess)
		if credit.LessThanOrEqual(decimal.Zero) {
			// Nothing purchased under the configured product; no-op credit.
			return nil
		}
		_, err = s.AdjustBalance(ctx, t.UserID, credit, DirectionAdd)
		return err
	case model.TypeSpendBalance:
		_, err := s.AdjustBalance(ctx, t.UserID, t.Balance, DirectionSubtract)
		return err
	default:
		return ErrUnsupportedTransactionType
	}
}

// checkoutCredit sums the credit represented by a checkout session's line
// items under the configured credit mode.
func (s *LedgerService) checkoutCredit(sess *checkout.Session) decimal.Decimal {
	var total int64
	for _, li := range sess.LineItems {
		switch s.opts.CreditMode {
		case CreditModeTokenMetadata:
			perUnit, err := strconv.ParseInt(li.Price.Metadata["tokens"], 10, 64)
			if err != nil {
				continue
			}
			total += li.Quantity * perUnit
		default:
			if li.Price.ID == s.opts.ProductID {
				total += li.Quantity
			}
		}
	}
	return decimal.NewFromInt(total)
}

// Repo exposes underlying repository (unit tests helper).
func (s *LedgerService) Repo() repo.RepositoryInterface {
	return s.repo
}
