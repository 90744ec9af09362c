package repo

import (
	"context"
	"testing"

	"github.com/richardliu001/token-ledger/internal/logger"
	"github.com/richardliu001/token-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestOptimisticLock_StaleVersionRejected(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	_ = db.AutoMigrate(&model.Wallet{})

	// seed wallet
	db.Create(&model.Wallet{UserID: "u1", Balance: decimal.NewFromInt(100)})

	repo := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	w, err := repo.GetWallet(ctx, "u1")
	assert.NoError(t, err)

	// first guarded write wins and bumps the version
	assert.NoError(t, repo.UpdateWallet(ctx, repo.DB(ctx), "u1",
		w.Balance.Add(decimal.NewFromInt(10)), w.Version))

	// a second write carrying the now-stale version must lose
	err = repo.UpdateWallet(ctx, repo.DB(ctx), "u1",
		w.Balance.Add(decimal.NewFromInt(10)), w.Version)
	assert.ErrorIs(t, err, ErrOptimisticLock)

	var final model.Wallet
	assert.NoError(t, db.Where("user_id = ?", "u1").First(&final).Error)
	assert.Equal(t, "110", final.Balance.StringFixed(0))
	assert.Equal(t, uint64(1), final.Version)
}

func TestTransitionTransaction_SingleClaim(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	_ = db.AutoMigrate(&model.Transaction{})

	db.Create(&model.Transaction{
		ID: "tx-1", UserID: "u1", Type: model.TypeSpendBalance,
		Balance: decimal.NewFromInt(1), Status: model.StatusPending,
	})

	repo := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	claimed, err := repo.TransitionTransaction(ctx, repo.DB(ctx), "tx-1", model.StatusPending, model.StatusInProgress)
	assert.NoError(t, err)
	assert.True(t, claimed)

	// second claim must lose: the transaction left PENDING already
	claimed, err = repo.TransitionTransaction(ctx, repo.DB(ctx), "tx-1", model.StatusPending, model.StatusInProgress)
	assert.NoError(t, err)
	assert.False(t, claimed)
}

func TestCreateWallet_UpsertDoNothing(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	_ = db.AutoMigrate(&model.Wallet{})

	repo := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	assert.NoError(t, repo.CreateWallet(ctx, repo.DB(ctx), &model.Wallet{UserID: "u1", Balance: decimal.NewFromInt(40)}))
	// second create is a no-op, existing balance survives
	assert.NoError(t, repo.CreateWallet(ctx, repo.DB(ctx), &model.Wallet{UserID: "u1", Balance: decimal.Zero}))

	w, err := repo.GetWallet(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, "40", w.Balance.StringFixed(0))
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}
