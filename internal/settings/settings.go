// Package settings persists the single process-wide settings record.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/joshsymonds/mailrules/internal/property"
)

// Key is the property under which settings are stored.
const Key = "settings"

// Defaults used when nothing has been saved yet.
const (
	DefaultIntervalHours   = 1
	DefaultMostRecentMails = 50
)

// ErrInvalidSettings is returned when a save request is rejected.
var ErrInvalidSettings = errors.New("invalid settings")

var allowedIntervals = []int{1, 2, 4, 6, 8, 12}

// AllowedIntervals returns the hour intervals accepted at save time.
func AllowedIntervals() []int {
	return slices.Clone(allowedIntervals)
}

// Settings controls the periodic evaluation pass.
type Settings struct {
	EnableAutoApply        bool `json:"enableAutoApply"`
	AutoApplyIntervalHours int  `json:"autoApplyIntervalHours"`
	MostRecentMails        int  `json:"mostRecentMails"`
}

// Default returns the settings in effect before the first save.
func Default() Settings {
	return Settings{
		EnableAutoApply:        false,
		AutoApplyIntervalHours: DefaultIntervalHours,
		MostRecentMails:        DefaultMostRecentMails,
	}
}

// Interval is AutoApplyIntervalHours as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.AutoApplyIntervalHours) * time.Hour
}

// UpdateSettingsRequest is the validated input of Save.
type UpdateSettingsRequest struct {
	EnableAutoApply        bool
	AutoApplyIntervalHours int `validate:"interval"`
	MostRecentMails        int `validate:"gt=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("interval", func(fl validator.FieldLevel) bool {
		return slices.Contains(allowedIntervals, int(fl.Field().Int()))
	})
	return v
}

// Validate checks the interval and mail count bounds.
func (r UpdateSettingsRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "AutoApplyIntervalHours":
			parts = append(parts, fmt.Sprintf("interval %v must be one of %v hours", fe.Value(), allowedIntervals))
		case "MostRecentMails":
			parts = append(parts, fmt.Sprintf("mail count %v must be positive", fe.Value()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(parts, "; "))
}

// Store reads and writes the settings record.
type Store struct {
	Bag    property.Bag
	Logger *slog.Logger
}

// NewStore returns a Store over bag.
func NewStore(bag property.Bag, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Store{Bag: bag, Logger: logger}
}

// Load returns the saved settings, or defaults when none are stored or the
// stored document cannot be parsed.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	raw, ok, err := s.Bag.Get(ctx, Key)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Default(), nil
	}
	var out Settings
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.Logger.ErrorContext(ctx, "failed to parse settings", "error", err)
		return Default(), nil
	}
	return out, nil
}

// Save validates req and stores it. Rejected requests leave the previous
// settings in place.
func (s *Store) Save(ctx context.Context, req UpdateSettingsRequest) (Settings, error) {
	if err := req.Validate(); err != nil {
		return Settings{}, err
	}
	out := Settings{
		EnableAutoApply:        req.EnableAutoApply,
		AutoApplyIntervalHours: req.AutoApplyIntervalHours,
		MostRecentMails:        req.MostRecentMails,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.Bag.Set(ctx, Key, string(data)); err != nil {
		return Settings{}, fmt.Errorf("write settings: %w", err)
	}
	s.Logger.InfoContext(ctx, "settings saved",
		"auto_apply", out.EnableAutoApply,
		"interval_hours", out.AutoApplyIntervalHours,
		"most_recent", out.MostRecentMails,
	)
	return out, nil
}
