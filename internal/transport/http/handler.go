package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/token-ledger/internal/service"
	"github.com/shopspring/decimal"
)

func RegisterHandlers(r *gin.Engine, svc *service.LedgerService) {
	v1 := r.Group("/v1")
	{
		v1.POST("/users/:id/wallet", openWalletHandler(svc))
		v1.GET("/users/:id/wallet", getWalletHandler(svc))
		v1.DELETE("/users/:id/wallet", deleteWalletHandler(svc))
		v1.POST("/users/:id/wallet/adjust", adjustBalanceHandler(svc))
		v1.POST("/users/:id/transactions", createTransactionHandler(svc))
		v1.GET("/users/:id/transactions", listTransactionsHandler(svc))
		v1.GET("/transactions/:id", getTransactionHandler(svc))
		v1.DELETE("/transactions/:id", deleteTransactionHandler(svc))
		v1.POST("/transactions/:id/resolve", resolveTransactionHandler(svc))
		v1.POST("/checkout/webhook", checkoutWebhookHandler(svc))
	}
}

func openWalletHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := svc.OpenWallet(c, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func getWalletHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := svc.GetWallet(c, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if w == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func deleteWalletHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteWallet(c, c.Param("id")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type adjustReq struct {
	Amount    string `json:"amount" binding:"required"`
	Direction string `json:"direction" binding:"required"`
}

func adjustBalanceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adjustReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		w, err := svc.AdjustBalance(c, c.Param("id"), amt, service.Direction(req.Direction))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": w.Balance})
	}
}

type createTxReq struct {
	Type        string `json:"type" binding:"required"`
	Description string `json:"description"`
	ExternalID  string `json:"external_id"`
	Balance     string `json:"balance"`
}

func createTransactionHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTxReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		bal := decimal.Zero
		if req.Balance != "" {
			var err error
			bal, err = decimal.NewFromString(req.Balance)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid balance"})
				return
			}
		}
		t, err := svc.CreateTransaction(c, service.CreateTransactionInput{
			UserID:      c.Param("id"),
			Type:        req.Type,
			Description: req.Description,
			ExternalID:  req.ExternalID,
			Balance:     bal,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

func listTransactionsHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start, _ := strconv.Atoi(c.DefaultQuery("start", "0"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "25"))
		txs, err := svc.GetTransactions(c, c.Param("id"), start, pageSize)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

func getTransactionHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.GetTransactionByID(c, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if t == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func deleteTransactionHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteTransaction(c, c.Param("id")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func resolveTransactionHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.ResolveTransaction(c, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type webhookReq struct {
	Type string `json:"type" binding:"required"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// checkoutWebhookHandler resolves the transaction correlated to a completed
// checkout session. Events of any other type are acknowledged and ignored.
func checkoutWebhookHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req webhookReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Type != "checkout.session.completed" {
			c.Status(http.StatusOK)
			return
		}
		t, err := svc.GetTransactionByExternalID(c, req.Data.Object.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if t == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no transaction for session"})
			return
		}
		if _, err := svc.ResolveTransaction(c, t.ID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	}
}
