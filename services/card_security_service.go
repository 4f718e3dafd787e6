package services

import (
	"context"
	"fmt"
	"time"

	"atmcore/apperrors"
	"atmcore/config"
	"atmcore/database"
	"atmcore/models"
	"atmcore/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuthResult - результат проверки карты и PIN. Отказ - это значение, а не ошибка:
// error из Authenticate означает только сбой инфраструктуры.
type AuthResult struct {
	Valid             bool
	Card              *models.Card
	Error             apperrors.Kind
	AttemptsRemaining int
	// BlockedNow - карта заблокирована этой попыткой
	BlockedNow bool
}

// pendingEvent - событие, которое пишется в журнал после фиксации транзакции
type pendingEvent struct {
	eventType models.SecurityEventType
	details   EventDetails
}

// CardSecurityService управляет проверкой PIN и блокировкой карт
type CardSecurityService struct {
	store         database.Store
	hasher        utils.SecretHasher
	events        *SecurityEventService
	notifier      Notifier
	metrics       *utils.Metrics
	log           *logrus.Logger
	hmacKey       string
	maxAttempts   int
	blockDuration time.Duration
	now           func() time.Time
}

// NewCardSecurityService создает новый экземпляр CardSecurityService
func NewCardSecurityService(
	store database.Store,
	hasher utils.SecretHasher,
	events *SecurityEventService,
	notifier Notifier,
	cfg config.SecurityConfig,
	log *logrus.Logger,
	metrics *utils.Metrics,
) *CardSecurityService {
	return &CardSecurityService{
		store:         store,
		hasher:        hasher,
		events:        events,
		notifier:      notifier,
		metrics:       metrics,
		log:           log,
		hmacKey:       cfg.CardHMACKey,
		maxAttempts:   cfg.MaxPinAttempts,
		blockDuration: cfg.CardBlockDuration,
		now:           time.Now,
	}
}

// Authenticate проверяет карту и PIN
func (s *CardSecurityService) Authenticate(ctx context.Context, cardNumber, pin string) (*AuthResult, error) {
	now := s.now().UTC()
	digest := utils.CardNumberDigest(cardNumber, s.hmacKey)

	var (
		result      *AuthResult
		event       pendingEvent
		blockedCard *models.Card
	)

	err := s.store.Atomic(ctx, func(tx database.Store) error {
		// Atomic может повторить функцию после конфликта
		result, event, blockedCard = nil, pendingEvent{}, nil

		card, err := tx.FindCardByNumber(ctx, digest)
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			result = &AuthResult{Error: apperrors.KindInvalidCard}
			event = pendingEvent{models.SecurityEventInvalidCard, EventDetails{
				Description: "Invalid card number attempted: " + utils.MaskCardNumber(cardNumber),
			}}
			return nil
		}
		if err != nil {
			return err
		}

		cardID, userID := card.ID, card.UserID
		details := EventDetails{CardID: &cardID, UserID: &userID}

		// Истекшая временная блокировка снимается автоматически
		if card.IsBlocked {
			if !card.BlockExpired(now) {
				result = &AuthResult{Error: apperrors.KindCardBlocked}
				details.Description = "Attempt to use blocked card " + card.MaskedNumber()
				event = pendingEvent{models.SecurityEventCardBlocked, details}
				return nil
			}
			clearBlock(card)
		}

		if !s.hasher.Verify(pin, card.PinHash, card.PinSalt) {
			card.FailedPinAttempts++
			card.LastFailedAttempt = &now

			remaining := s.maxAttempts - card.FailedPinAttempts
			if remaining < 0 {
				remaining = 0
			}

			if card.FailedPinAttempts >= s.maxAttempts {
				until := now.Add(s.blockDuration)
				card.IsBlocked = true
				card.BlockedUntil = &until
				card.BlockReason = models.BlockReasonPinFailures

				result = &AuthResult{Error: apperrors.KindCardBlocked, BlockedNow: true}
				details.Description = fmt.Sprintf("Card %s blocked after %d failed PIN attempts", card.MaskedNumber(), card.FailedPinAttempts)
				event = pendingEvent{models.SecurityEventCardBlocked, details}
				blocked := *card
				blockedCard = &blocked
			} else {
				result = &AuthResult{Error: apperrors.KindInvalidPin, AttemptsRemaining: remaining}
				details.Description = fmt.Sprintf("Invalid PIN for card %s, %d attempts remaining", card.MaskedNumber(), remaining)
				event = pendingEvent{models.SecurityEventPinFailure, details}
			}
			return tx.SaveCard(ctx, card)
		}

		// PIN верный
		card.FailedPinAttempts = 0
		card.LastFailedAttempt = nil
		card.LastUsed = &now
		if err := tx.SaveCard(ctx, card); err != nil {
			return err
		}

		result = &AuthResult{Valid: true, Card: card, AttemptsRemaining: s.maxAttempts}
		details.Description = "Successful PIN validation for card " + card.MaskedNumber()
		event = pendingEvent{models.SecurityEventLoginSuccess, details}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("authenticate card", err)
	}

	s.events.Record(ctx, event.eventType, event.details)
	s.recordMetrics(event.eventType, blockedCard != nil)
	if blockedCard != nil {
		s.notifyBlocked(ctx, blockedCard)
	}
	return result, nil
}

func (s *CardSecurityService) recordMetrics(eventType models.SecurityEventType, blockedNow bool) {
	if s.metrics == nil {
		return
	}
	switch eventType {
	case models.SecurityEventLoginSuccess:
		s.metrics.RecordCardOperation("login")
	case models.SecurityEventInvalidCard:
		s.metrics.RecordCardOperation("invalid_card")
	case models.SecurityEventPinFailure:
		s.metrics.RecordCardOperation("pin_failure")
	case models.SecurityEventCardBlocked:
		if blockedNow {
			s.metrics.RecordCardOperation("pin_failure")
			s.metrics.RecordCardOperation("block")
		}
	}
}

// notifyBlocked отправляет письмо держателю; ошибки только логируются
func (s *CardSecurityService) notifyBlocked(ctx context.Context, card *models.Card) {
	user, err := s.store.GetUser(ctx, card.UserID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"card_id": card.ID.String(),
			"error":   err,
		}).Warn("Не удалось найти держателя заблокированной карты")
		return
	}

	go func() {
		if err := s.notifier.SendCardBlockedNotification(user.Email, user.FullName(), card.MaskedNumber(), card.BlockedUntil); err != nil {
			s.log.WithFields(logrus.Fields{
				"card_id": card.ID.String(),
				"error":   err,
			}).Warn("Не удалось отправить уведомление о блокировке карты")
		}
	}()
}

// BlockCard блокирует карту бессрочно; снять блокировку можно только через UnblockCard
func (s *CardSecurityService) BlockCard(ctx context.Context, cardID uuid.UUID, reason string) error {
	var card *models.Card
	err := s.store.Atomic(ctx, func(tx database.Store) error {
		var err error
		card, err = tx.GetCard(ctx, cardID)
		if err != nil {
			return err
		}
		card.IsBlocked = true
		card.BlockedUntil = nil
		card.BlockReason = reason
		return tx.SaveCard(ctx, card)
	})
	if err != nil {
		return apperrors.Internal("block card", err)
	}

	userID := card.UserID
	s.events.Record(ctx, models.SecurityEventCardBlocked, EventDetails{
		CardID:      &cardID,
		UserID:      &userID,
		Description: fmt.Sprintf("Card %s blocked: %s", card.MaskedNumber(), reason),
	})
	if s.metrics != nil {
		s.metrics.RecordCardOperation("block")
	}
	return nil
}

// UnblockCard снимает блокировку и обнуляет счетчик неудачных попыток
func (s *CardSecurityService) UnblockCard(ctx context.Context, cardID uuid.UUID) error {
	err := s.store.Atomic(ctx, func(tx database.Store) error {
		card, err := tx.GetCard(ctx, cardID)
		if err != nil {
			return err
		}
		clearBlock(card)
		return tx.SaveCard(ctx, card)
	})
	if err != nil {
		return apperrors.Internal("unblock card", err)
	}

	s.log.WithField("card_id", cardID.String()).Info("Карта разблокирована")
	if s.metrics != nil {
		s.metrics.RecordCardOperation("unblock")
	}
	return nil
}

func clearBlock(card *models.Card) {
	card.IsBlocked = false
	card.BlockedUntil = nil
	card.BlockReason = ""
	card.FailedPinAttempts = 0
	card.LastFailedAttempt = nil
}
