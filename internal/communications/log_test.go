package communications

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

type fakeCounter struct{ next int64 }

func (f *fakeCounter) Next(ctx context.Context, name string) (int64, error) {
	f.next++
	return f.next, nil
}

func TestRecordAllocatesIDAndDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO communications").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository(db, &fakeCounter{})
	e := &Entry{PatientID: 12, Type: TypeNote, Content: "Invoice INV-2025-0001 issued"}
	if err := repo.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.CommunicationID != 1 {
		t.Errorf("expected allocated id 1, got %d", e.CommunicationID)
	}
	if e.DeliveryStatus != DeliveryPending {
		t.Errorf("expected pending default, got %s", e.DeliveryStatus)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestNoteEntryIsSent(t *testing.T) {
	e := Note(5, "Billing note", "Same-day cancellation fee applied", Metadata{Source: "outcome"})
	if e.Type != TypeNote || e.DeliveryStatus != DeliverySent {
		t.Errorf("unexpected note entry: %+v", e)
	}
	if len(e.Metadata) == 0 {
		t.Error("expected metadata to be marshalled")
	}
}

func TestMarkDelivery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE communications SET delivery_status").
		WithArgs(int64(9), DeliverySent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository(db, &fakeCounter{})
	err = repo.MarkDelivery(context.Background(), 9, DeliverySent, Metadata{ProviderMessageID: "abc"})
	if err != nil {
		t.Fatalf("MarkDelivery: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
