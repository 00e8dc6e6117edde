// Package settings serves operator-tunable platform values such as the
// platform fee and the seller commit window.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
)

const (
	KeyPlatformFeePercent         = "platform_fee_percent"
	KeyCommitWindowHours          = "commit_window_hours"
	KeyAffiliateCommissionPercent = "affiliate_commission_percent"
)

var defaults = map[string]string{
	KeyPlatformFeePercent:         "10",
	KeyCommitWindowHours:          "48",
	KeyAffiliateCommissionPercent: "2",
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Upsert(ctx context.Context, key, value string) error
}

// Service reads settings through the cache and falls back to defaults when a
// row is missing or unreadable.
type Service struct {
	repo  store
	cache Cache
	ttl   time.Duration
	logg  *logger.Logger
	group singleflight.Group
}

func NewService(repo store, cache Cache, ttl time.Duration, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if cache == nil {
		return nil, fmt.Errorf("settings cache required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logg: logg}, nil
}

// Get returns the raw value for key.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if value, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return value, nil
	} else if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"setting": key, "error": err.Error()}), "settings cache read failed")
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		value, err := s.repo.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			fallback, ok := defaults[key]
			if !ok {
				return "", err
			}
			return fallback, nil
		}
		if err != nil {
			return "", err
		}
		if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"setting": key, "error": err.Error()}), "settings cache write failed")
		}
		return value, nil
	})
	if err != nil {
		return "", fmt.Errorf("load setting %s: %w", key, err)
	}
	return value.(string), nil
}

// PlatformFeePercent is the share of the sale kept by the platform on payout.
func (s *Service) PlatformFeePercent(ctx context.Context) (decimal.Decimal, error) {
	return s.percent(ctx, KeyPlatformFeePercent)
}

// AffiliateCommissionPercent is the share of the sale owed to a referring affiliate.
func (s *Service) AffiliateCommissionPercent(ctx context.Context) (decimal.Decimal, error) {
	return s.percent(ctx, KeyAffiliateCommissionPercent)
}

// CommitWindow is how long a seller has to commit after payment.
func (s *Service) CommitWindow(ctx context.Context) (time.Duration, error) {
	raw, err := s.Get(ctx, KeyCommitWindowHours)
	if err != nil {
		return 0, err
	}
	hours, err := parseHours(raw)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"setting": KeyCommitWindowHours, "value": raw}), "invalid setting, using default")
		hours, _ = parseHours(defaults[KeyCommitWindowHours])
	}
	return time.Duration(hours) * time.Hour, nil
}

// Update validates and stores a new value, then drops the cached copy.
func (s *Service) Update(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if _, known := defaults[key]; !known {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown setting %q", key))
	}
	if err := validate(key, value); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	if err := s.repo.Upsert(ctx, key, value); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store setting")
	}
	if err := s.Invalidate(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate setting cache")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"setting": key, "value": value}), "platform setting updated")
	return nil
}

// Invalidate drops the cached value for key.
func (s *Service) Invalidate(ctx context.Context, key string) error {
	s.group.Forget(key)
	return s.cache.Invalidate(ctx, key)
}

func (s *Service) percent(ctx context.Context, key string) (decimal.Decimal, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	pct, err := parsePercent(raw)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"setting": key, "value": raw}), "invalid setting, using default")
		return parsePercent(defaults[key])
	}
	return pct, nil
}

func validate(key, value string) error {
	switch key {
	case KeyCommitWindowHours:
		_, err := parseHours(value)
		return err
	default:
		_, err := parsePercent(value)
		return err
	}
}

func parsePercent(raw string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("percent must be numeric")
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("percent must be between 0 and 100")
	}
	return pct, nil
}

func parseHours(raw string) (int, error) {
	hours, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || hours <= 0 {
		return 0, fmt.Errorf("hours must be a positive integer")
	}
	return hours, nil
}
