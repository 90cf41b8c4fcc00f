package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestFindByIDUnknownReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM appointments WHERE appointment_id").
		WithArgs(int64(55)).
		WillReturnRows(sqlmock.NewRows([]string{"appointment_id"}))

	repo := NewRepository(db)
	a, err := repo.FindByID(context.Background(), 55)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil for unknown appointment, got %+v", a)
	}
}

func TestFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"appointment_id", "patient_id", "therapist_id", "type", "date",
		"price_pence", "status", "completion_status", "completion_note", "payment_status", "created_at", "updated_at"}).
		AddRow(int64(1001), int64(42), int64(3), "Physiotherapy", now, int64(6000),
			StatusScheduled, "", "", PayPending, now, now)
	mock.ExpectQuery("FROM appointments WHERE appointment_id").
		WithArgs(int64(1001)).
		WillReturnRows(rows)

	repo := NewRepository(db)
	a, err := repo.FindByID(context.Background(), 1001)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if a.Price != 6000 || a.PaymentStatus != PayPending {
		t.Errorf("unexpected appointment: %+v", a)
	}
}

func TestSetPaymentStatusNoIDsIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	repo := NewRepository(db)
	if err := repo.SetPaymentStatus(context.Background(), nil, nil, PayPaid); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
