package controllers

import (
	"net/http"

	"atmcore/apperrors"
	"atmcore/middleware"
	"atmcore/models"
	"atmcore/services"
	"atmcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// WithdrawRequest представляет DTO для снятия наличных
type WithdrawRequest struct {
	Amount float64 `json:"amount" validate:"required,gte=0.01,lte=10000,cents"`
}

// DepositRequest представляет DTO для внесения наличных
type DepositRequest struct {
	Amount float64 `json:"amount" validate:"required,gte=0.01,lte=50000,cents"`
}

// TransactionView - строка истории операций
type TransactionView struct {
	ID            string                   `json:"id"`
	Type          models.TransactionType   `json:"type"`
	Amount        decimal.Decimal          `json:"amount"`
	BalanceBefore decimal.Decimal          `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal          `json:"balanceAfter"`
	Status        models.TransactionStatus `json:"status"`
	Description   string                   `json:"description"`
	CreatedAt     string                   `json:"createdAt"`
}

// TransactionController обрабатывает операции по счету в рамках сессии
type TransactionController struct {
	atm      *services.ATMService
	validate *validator.Validate
	log      *logrus.Logger
	metrics  *utils.Metrics
}

// NewTransactionController создает новый экземпляр TransactionController
func NewTransactionController(atm *services.ATMService, log *logrus.Logger, metrics *utils.Metrics) *TransactionController {
	return &TransactionController{
		atm:      atm,
		validate: newValidator(),
		log:      log,
		metrics:  metrics,
	}
}

func (tc *TransactionController) session(c *gin.Context) (*services.SessionContext, bool) {
	sc, ok := middleware.SessionFromContext(c)
	if !ok {
		middleware.RespondError(c, tc.log, tc.metrics, apperrors.New(apperrors.KindUnauthorized, "no session in context"))
		return nil, false
	}
	return sc, true
}

// Withdraw снимает наличные со связанного счета
func (tc *TransactionController) Withdraw(c *gin.Context) {
	sc, ok := tc.session(c)
	if !ok {
		return
	}

	var req WithdrawRequest
	if err := bindAndValidate(c, tc.validate, &req); err != nil {
		middleware.RespondError(c, tc.log, tc.metrics, err)
		return
	}

	result, err := tc.atm.Withdraw(c.Request.Context(), services.TransactionRequest{
		CardID:    sc.Card.ID,
		AccountID: sc.Card.LinkedAccountID,
		Amount:    decimal.NewFromFloat(req.Amount).Round(2),
		SessionID: &sc.Session.ID,
	})
	if err != nil {
		middleware.RespondError(c, tc.log, tc.metrics, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Withdrawal successful",
		"data":    result,
	})
}

// Deposit вносит наличные на связанный счет
func (tc *TransactionController) Deposit(c *gin.Context) {
	sc, ok := tc.session(c)
	if !ok {
		return
	}

	var req DepositRequest
	if err := bindAndValidate(c, tc.validate, &req); err != nil {
		middleware.RespondError(c, tc.log, tc.metrics, err)
		return
	}

	result, err := tc.atm.Deposit(c.Request.Context(), services.TransactionRequest{
		CardID:    sc.Card.ID,
		AccountID: sc.Card.LinkedAccountID,
		Amount:    decimal.NewFromFloat(req.Amount).Round(2),
		SessionID: &sc.Session.ID,
	})
	if err != nil {
		middleware.RespondError(c, tc.log, tc.metrics, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Deposit successful",
		"data":    result,
	})
}

// Balance возвращает баланс связанного счета
func (tc *TransactionController) Balance(c *gin.Context) {
	sc, ok := tc.session(c)
	if !ok {
		return
	}

	balance, err := tc.atm.GetBalance(c.Request.Context(), sc.Card.ID, sc.Card.LinkedAccountID)
	if err != nil {
		middleware.RespondError(c, tc.log, tc.metrics, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Balance inquiry successful",
		"data":    balance,
	})
}

// Recent возвращает последние операции по карте
func (tc *TransactionController) Recent(c *gin.Context) {
	sc, ok := tc.session(c)
	if !ok {
		return
	}

	txs, err := tc.atm.GetRecentTransactions(c.Request.Context(), sc.Card.ID)
	if err != nil {
		middleware.RespondError(c, tc.log, tc.metrics, err)
		return
	}

	views := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, TransactionView{
			ID:            tx.ID.String(),
			Type:          tx.Type,
			Amount:        tx.Amount,
			BalanceBefore: tx.BalanceBefore,
			BalanceAfter:  tx.BalanceAfter,
			Status:        tx.Status,
			Description:   tx.Description,
			CreatedAt:     tx.CreatedAt.UTC().Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "success",
		"data":    views,
	})
}

// LinkedAccount возвращает сведения о привязанном счете
func (tc *TransactionController) LinkedAccount(c *gin.Context) {
	sc, ok := tc.session(c)
	if !ok {
		return
	}

	account, err := tc.atm.GetLinkedAccount(c.Request.Context(), sc.Card.ID)
	if err != nil {
		middleware.RespondError(c, tc.log, tc.metrics, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "success",
		"data":    account,
	})
}
