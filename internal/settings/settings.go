// Package settings provides the clinic settings document the billing engine
// reads: invoice numbering prefix, branding, tax default, payment
// instructions, and reminder windows.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const settingsKey = "clinic:settings"

// Branding appears on rendered invoices and emails.
type Branding struct {
	ClinicName   string   `json:"clinic_name"`
	AddressLines []string `json:"address_lines,omitempty"`
	LogoURL      string   `json:"logo_url,omitempty"`
	FooterNote   string   `json:"footer_note,omitempty"`
}

// Settings is the clinic settings document. Latest always returns a value:
// defaults are used when nothing has been saved yet.
type Settings struct {
	InvoicePrefix       string   `json:"invoice_prefix"`
	Currency            string   `json:"currency"`
	DefaultTaxRateBP    int      `json:"default_tax_rate_bp"`
	PaymentInstructions string   `json:"payment_instructions,omitempty"`
	ReminderDaysBefore  int      `json:"reminder_days_before"`
	ReminderDaysAfter   int      `json:"reminder_days_after"`
	Branding            Branding `json:"branding"`
}

// Defaults returns the settings used when none have been saved.
func Defaults() *Settings {
	return &Settings{
		InvoicePrefix:      "INV",
		Currency:           "GBP",
		DefaultTaxRateBP:   0,
		ReminderDaysBefore: 3,
		ReminderDaysAfter:  7,
		Branding: Branding{
			ClinicName: "Bridges Physiotherapy",
		},
	}
}

// Store persists settings in Redis and memoises the last read in-process.
// The memo is refreshed on every write.
type Store struct {
	redis           *redis.Client
	defaultCurrency string

	mu     sync.RWMutex
	cached *Settings
}

// NewStore creates a settings store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

// WithDefaultCurrency overrides the reporting currency used until a settings
// document is saved (the REPORTING_CURRENCY deployment default). A saved
// document always wins.
func (s *Store) WithDefaultCurrency(currency string) *Store {
	s.defaultCurrency = currency
	return s
}

func (s *Store) defaults() *Settings {
	cfg := Defaults()
	if s.defaultCurrency != "" {
		cfg.Currency = s.defaultCurrency
	}
	return cfg
}

// Latest returns the current settings, falling back to defaults when unset.
func (s *Store) Latest(ctx context.Context) (*Settings, error) {
	s.mu.RLock()
	if s.cached != nil {
		cfg := *s.cached
		s.mu.RUnlock()
		return &cfg, nil
	}
	s.mu.RUnlock()

	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if err == redis.Nil {
		return s.defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get: %w", err)
	}

	cfg := s.defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("settings: unmarshal: %w", err)
	}

	s.mu.Lock()
	copied := *cfg
	s.cached = &copied
	s.mu.Unlock()
	return cfg, nil
}

// Save persists settings and refreshes the memo.
func (s *Store) Save(ctx context.Context, cfg *Settings) error {
	if cfg.InvoicePrefix == "" {
		return fmt.Errorf("settings: invoice prefix required")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}

	s.mu.Lock()
	copied := *cfg
	s.cached = &copied
	s.mu.Unlock()
	return nil
}
