package services

import (
	"context"
	"errors"
	"testing"

	"atmcore/database"
	"atmcore/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEventStore struct {
	*database.MemoryStore
}

func (failingEventStore) CreateSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	return errors.New("disk full")
}

func TestRecord_StoresEventWithCorrelationID(t *testing.T) {
	store := database.NewMemoryStore()
	log, hook := test.NewNullLogger()
	s := NewSecurityEventService(store, log)

	cardID, userID := uuid.New(), uuid.New()
	ctx := WithRequestID(context.Background(), "req-42")
	s.Record(ctx, models.SecurityEventPinFailure, EventDetails{
		CardID:      &cardID,
		UserID:      &userID,
		Description: "Invalid PIN",
	})

	events := store.SecurityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "req-42", events[0].CorrelationID)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, models.SecurityEventPinFailure, events[0].EventType)
	assert.Equal(t, cardID, *events[0].CardID)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "req-42", hook.LastEntry().Data["request_id"])
}

func TestRecord_SwallowsStoreFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := NewSecurityEventService(failingEventStore{database.NewMemoryStore()}, log)

	assert.NotPanics(t, func() {
		s.Record(context.Background(), models.SecurityEventInvalidCard, EventDetails{Description: "Invalid card"})
	})
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestAuthenticate_SucceedsWhenEventLogFails(t *testing.T) {
	f := newFixture(t)
	log, _ := test.NewNullLogger()
	f.security.events = NewSecurityEventService(failingEventStore{f.store}, log)

	res, err := f.security.Authenticate(context.Background(), testCardNumber, testPIN)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}
