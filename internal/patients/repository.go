package patients

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/bridgesphysio/clinic-portal/internal/fieldcrypt"
)

// Repository reads the patient directory. Contact fields are stored
// encrypted; the repository decrypts on read.
type Repository struct {
	db     *sql.DB
	cipher *fieldcrypt.Cipher
}

// NewRepository creates the directory reader. cipher may be nil when the
// deployment stores contact fields in the clear (dev/test).
func NewRepository(db *sql.DB, cipher *fieldcrypt.Cipher) *Repository {
	return &Repository{db: db, cipher: cipher}
}

const patientColumns = `patient_id, first_name, surname, preferred_name, email, phone,
	       primary_contact_name, primary_contact_email, primary_contact_phone,
	       billing_mode, email_active, archived`

// FindByID returns the patient or nil when unknown.
func (r *Repository) FindByID(ctx context.Context, patientID int64) (*Patient, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+patientColumns+`
		FROM patients WHERE patient_id = $1`, patientID)
	return r.scan(row)
}

// FindByNameKeys tries each normalised key in order and returns the first
// patient whose candidate keys contain it, or nil when none match.
func (r *Repository) FindByNameKeys(ctx context.Context, keys []string) (*Patient, error) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		row := r.db.QueryRowContext(ctx, `
			SELECT `+patientColumns+`
			FROM patients
			WHERE $1 = ANY(name_keys) AND NOT archived
			ORDER BY patient_id
			LIMIT 1`, key)
		p, err := r.scan(row)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// FindBySearchTokens resolves patients by deterministic contact tokens
// (encrypted email/phone lookup).
func (r *Repository) FindBySearchTokens(ctx context.Context, tokens []string) (*Patient, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE contact_tokens && $1 AND NOT archived
		ORDER BY patient_id
		LIMIT 1`, pq.Array(tokens))
	return r.scan(row)
}

func (r *Repository) scan(row *sql.Row) (*Patient, error) {
	var p Patient
	var preferred, pcName, pcEmail, pcPhone sql.NullString
	err := row.Scan(&p.PatientID, &p.FirstName, &p.Surname, &preferred, &p.Email, &p.Phone,
		&pcName, &pcEmail, &pcPhone, &p.BillingMode, &p.EmailActive, &p.Archived)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patients: scan: %w", err)
	}
	p.PreferredName = preferred.String
	p.PrimaryContactName = pcName.String
	p.PrimaryContactEmail = pcEmail.String
	p.PrimaryContactPhone = pcPhone.String
	if r.cipher != nil {
		if p.Email, err = r.cipher.Decrypt(p.Email); err != nil {
			return nil, fmt.Errorf("patients: decrypt email: %w", err)
		}
		if p.Phone, err = r.cipher.Decrypt(p.Phone); err != nil {
			return nil, fmt.Errorf("patients: decrypt phone: %w", err)
		}
		if pcEmail.Valid && pcEmail.String != "" {
			if p.PrimaryContactEmail, err = r.cipher.Decrypt(pcEmail.String); err != nil {
				return nil, fmt.Errorf("patients: decrypt contact email: %w", err)
			}
		}
		if pcPhone.Valid && pcPhone.String != "" {
			if p.PrimaryContactPhone, err = r.cipher.Decrypt(pcPhone.String); err != nil {
				return nil, fmt.Errorf("patients: decrypt contact phone: %w", err)
			}
		}
	}
	return &p, nil
}
