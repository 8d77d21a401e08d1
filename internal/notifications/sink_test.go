package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/callino/pos-hobex-bridge/internal/payments"
	"github.com/callino/pos-hobex-bridge/pkg/logger"
)

func TestSinkPersistsNotification(t *testing.T) {
	repo := &fakeRepository{}
	sink, err := NewSink(repo, logger.New(logger.Options{ServiceName: "notifications-test"}))
	if err != nil {
		t.Fatalf("unexpected sink error: %v", err)
	}

	lineID := uuid.New()
	sink.Notify(context.Background(), payments.Notification{
		LineID: &lineID,
		Title:  "hobex",
		Body:   "Die Transaktion wurde am Terminal abgebrochen",
	})

	if len(repo.created) != 1 {
		t.Fatalf("expected 1 persisted notification, got %d", len(repo.created))
	}
	record := repo.created[0]
	if record.LineID == nil || *record.LineID != lineID {
		t.Fatalf("unexpected line id %v", record.LineID)
	}
	if record.Title != "hobex" {
		t.Fatalf("unexpected title %q", record.Title)
	}
}

func TestSinkSwallowsPersistFailures(t *testing.T) {
	repo := &fakeRepository{createErr: errors.New("db down")}
	sink, err := NewSink(repo, logger.New(logger.Options{ServiceName: "notifications-test"}))
	if err != nil {
		t.Fatalf("unexpected sink error: %v", err)
	}

	// Must not panic or surface the repository failure.
	sink.Notify(context.Background(), payments.Notification{Title: "hobex Fehler", Body: "test"})
}
