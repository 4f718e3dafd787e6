package database

import (
	"context"
	"fmt"
	"time"

	"atmcore/apperrors"
	"atmcore/models"
	"atmcore/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Демо-карта для локального запуска
const (
	DemoCardNumber = "4532123456789012"
	DemoPIN        = "1234"
	demoCVV        = "123"
)

// Seed создает демо-пользователя, два счета и карту, если карты еще нет
func Seed(ctx context.Context, s Store, hasher utils.SecretHasher, cardHMACKey string, log *logrus.Logger) error {
	digest := utils.CardNumberDigest(DemoCardNumber, cardHMACKey)
	if _, err := s.FindCardByNumber(ctx, digest); err == nil {
		log.Info("Демо-данные уже созданы")
		return nil
	} else if !apperrors.IsKind(err, apperrors.KindNotFound) {
		return err
	}

	pinHash, pinSalt, err := hasher.Hash(DemoPIN)
	if err != nil {
		return fmt.Errorf("failed to hash demo pin: %w", err)
	}
	cvvHash, err := utils.HashCVV(demoCVV)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user := &models.User{
		FirstName: "Peter",
		LastName:  "Parker",
		Email:     "peter.parker@example.com",
		Phone:     "+1-555-0100",
		IsActive:  true,
	}
	checking := &models.Account{
		AccountNumber: "1000000001",
		AccountType:   models.AccountTypeChecking,
		Balance:       decimal.NewFromInt(5000),
		Currency:      "CAD",
		IsActive:      true,
	}
	savings := &models.Account{
		AccountNumber: "1000000002",
		AccountType:   models.AccountTypeSavings,
		Balance:       decimal.NewFromInt(15000),
		Currency:      "CAD",
		IsActive:      true,
	}

	card := &models.Card{
		NumberHMAC:         digest,
		Last4:              DemoCardNumber[len(DemoCardNumber)-4:],
		CardType:           "VISA",
		ExpiryDate:         now.AddDate(3, 0, 0),
		CVVHash:            cvvHash,
		PinHash:            pinHash,
		PinSalt:            pinSalt,
		TodaysTransactions: decimal.Zero,
		TodaysWithdrawals:  decimal.Zero,
		LastResetDate:      now,
		IsActive:           true,
	}

	// Пользователь, счета и карта создаются вместе
	err = s.Atomic(ctx, func(tx Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		checking.UserID = user.ID
		savings.UserID = user.ID
		card.UserID = user.ID

		if err := tx.SaveAccount(ctx, checking); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, savings); err != nil {
			return err
		}
		card.PrimaryAccountID = checking.ID
		card.LinkedAccountID = savings.ID
		return tx.SaveCard(ctx, card)
	})
	if err != nil {
		return fmt.Errorf("failed to create demo data: %w", err)
	}

	log.WithFields(logrus.Fields{
		"card":    utils.MaskCardNumber(DemoCardNumber),
		"user_id": user.ID.String(),
	}).Info("Демо-данные созданы")
	return nil
}
