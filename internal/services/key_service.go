package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"keyforge/internal/infrastructure"
	"keyforge/internal/keys"
	"keyforge/pkg/contracts/domain"
	"keyforge/pkg/contracts/events"
)

// KeyManager is the subset of *keys.Manager the service drives
type KeyManager interface {
	MintBatch(ctx context.Context, req keys.MintRequest) ([]domain.KeyRecord, error)
	Delete(ctx context.Context, id string) error
	ResetHWID(ctx context.Context, id string) (domain.KeyRecord, error)
	Bind(ctx context.Context, id, hwid string) (keys.BindResult, error)
	Revoke(ctx context.Context, id string) (domain.KeyRecord, error)
	Get(ctx context.Context, id string) (domain.KeyRecord, error)
	List(ctx context.Context, filter domain.KeyFilter) ([]domain.KeyRecord, error)
	CheckTime(ctx context.Context, id string) ([]domain.TimeInfo, error)
	Stats(ctx context.Context) (domain.KeyStats, error)
	ExpireDue(ctx context.Context) ([]string, error)
	Cleanup(ctx context.Context) ([]string, error)
}

// KeyService provides key issuance and maintenance to the transport layer
type KeyService interface {
	Generate(ctx context.Context, amount int) ([]domain.KeyRecord, error)
	GenerateTemporary(ctx context.Context, minutes, amount int) ([]domain.KeyRecord, error)
	Delete(ctx context.Context, id string) error
	ResetHWID(ctx context.Context, id string) (domain.KeyRecord, error)
	Revoke(ctx context.Context, id string) (domain.KeyRecord, error)
	Bind(ctx context.Context, id, hwid string) (keys.BindResult, error)
	Validate(ctx context.Context, id, hwid string) (domain.ValidationResult, error)
	Get(ctx context.Context, id string) (domain.KeyRecord, error)
	List(ctx context.Context, filter domain.KeyFilter) ([]domain.KeyRecord, error)
	CheckTime(ctx context.Context, id string) ([]domain.TimeInfo, error)
	Stats(ctx context.Context) (domain.KeyStats, error)
	ReportStats(ctx context.Context) (domain.KeyStats, error)
	ExpireDue(ctx context.Context) ([]string, error)
	Cleanup(ctx context.Context) ([]string, error)
}

type keyService struct {
	manager   KeyManager
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewKeyService wraps manager. A nil publisher drops events.
func NewKeyService(manager KeyManager, publisher Publisher, logger *slog.Logger) KeyService {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &keyService{
		manager:   manager,
		publisher: publisher,
		logger:    logger.With(slog.String("service", "keys")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *keyService) Generate(ctx context.Context, amount int) ([]domain.KeyRecord, error) {
	if amount == 0 {
		amount = 1
	}
	recs, err := s.manager.MintBatch(ctx, keys.MintRequest{Kind: domain.KeyKindPermanent, Amount: amount})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "keys generated",
		slog.Int("amount", len(recs)),
		slog.String("type", string(domain.KeyKindPermanent)))
	s.publish(ctx, events.KeyEvent{
		BaseMessage: s.base(ctx, events.MessageTypeKeyGenerated),
		Keys:        ids(recs),
		Kind:        domain.KeyKindPermanent,
	})
	return recs, nil
}

func (s *keyService) GenerateTemporary(ctx context.Context, minutes, amount int) ([]domain.KeyRecord, error) {
	if amount == 0 {
		amount = 1
	}
	recs, err := s.manager.MintBatch(ctx, keys.MintRequest{
		Kind:   domain.KeyKindTemporary,
		Amount: amount,
		TTL:    time.Duration(minutes) * time.Minute,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "temporary keys generated",
		slog.Int("amount", len(recs)),
		slog.Int("minutes", minutes))
	s.publish(ctx, events.KeyEvent{
		BaseMessage:      s.base(ctx, events.MessageTypeKeyGenerated),
		Keys:             ids(recs),
		Kind:             domain.KeyKindTemporary,
		ExpiresAt:        recs[0].ExpiresAt,
		ExpiresInMinutes: minutes,
	})
	return recs, nil
}

func (s *keyService) Delete(ctx context.Context, id string) error {
	if err := s.manager.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "key deleted", slog.String("key", id))
	s.publish(ctx, events.KeyEvent{
		BaseMessage: s.base(ctx, events.MessageTypeKeyDeleted),
		Keys:        []string{id},
	})
	return nil
}

func (s *keyService) ResetHWID(ctx context.Context, id string) (domain.KeyRecord, error) {
	rec, err := s.manager.ResetHWID(ctx, id)
	if err != nil {
		return rec, err
	}
	s.logger.InfoContext(ctx, "hwid reset",
		slog.String("key", id),
		slog.Int("hwid_resets", rec.HWIDResets))
	s.publish(ctx, events.KeyEvent{
		BaseMessage: s.base(ctx, events.MessageTypeKeyHWIDReset),
		Keys:        []string{id},
		Kind:        rec.Kind,
		HWIDResets:  rec.HWIDResets,
	})
	return rec, nil
}

func (s *keyService) Revoke(ctx context.Context, id string) (domain.KeyRecord, error) {
	rec, err := s.manager.Revoke(ctx, id)
	if err != nil {
		return rec, err
	}
	s.logger.InfoContext(ctx, "key revoked", slog.String("key", id))
	s.publish(ctx, events.KeyEvent{
		BaseMessage: s.base(ctx, events.MessageTypeKeyRevoked),
		Keys:        []string{id},
		Kind:        rec.Kind,
	})
	return rec, nil
}

func (s *keyService) Bind(ctx context.Context, id, hwid string) (keys.BindResult, error) {
	res, err := s.manager.Bind(ctx, id, hwid)
	if err != nil {
		return res, err
	}
	if res.NewlyBound {
		s.announceBind(ctx, res.Key)
	}
	return res, nil
}

// Validate binds the key on first use and reports whether the caller may run.
// Lifecycle refusals become a negative result; invalid input and storage
// faults are returned as errors.
func (s *keyService) Validate(ctx context.Context, id, hwid string) (domain.ValidationResult, error) {
	result := domain.ValidationResult{Key: id, CheckedAt: s.now()}

	res, err := s.manager.Bind(ctx, id, hwid)
	switch {
	case err == nil:
		result.Valid = true
		result.Kind = res.Key.Kind
		result.NewlyBound = res.NewlyBound
		result.ExpiresAt = res.Key.ExpiresAt
		if res.NewlyBound {
			s.announceBind(ctx, res.Key)
		}
	case errors.Is(err, keys.ErrNotFound):
		result.Reason = domain.ReasonNotFound
	case errors.Is(err, keys.ErrInactive):
		result.Reason = domain.ReasonInactive
	case errors.Is(err, keys.ErrAlreadyBound):
		result.Reason = domain.ReasonAlreadyBound
	default:
		return result, err
	}

	s.logger.InfoContext(ctx, "key validated",
		slog.String("key", id),
		slog.Bool("valid", result.Valid),
		slog.String("reason", result.Reason))
	return result, nil
}

func (s *keyService) announceBind(ctx context.Context, rec domain.KeyRecord) {
	s.logger.InfoContext(ctx, "key bound", slog.String("key", rec.ID))
	s.publish(ctx, events.KeyEvent{
		BaseMessage: s.base(ctx, events.MessageTypeKeyBound),
		Keys:        []string{rec.ID},
		Kind:        rec.Kind,
		HWID:        rec.BoundTo(),
	})
}

func (s *keyService) Get(ctx context.Context, id string) (domain.KeyRecord, error) {
	return s.manager.Get(ctx, id)
}

func (s *keyService) List(ctx context.Context, filter domain.KeyFilter) ([]domain.KeyRecord, error) {
	if !filter.Valid() {
		return nil, fmt.Errorf("%w: unknown filter %q", keys.ErrInvalidArgument, filter)
	}
	return s.manager.List(ctx, filter)
}

func (s *keyService) CheckTime(ctx context.Context, id string) ([]domain.TimeInfo, error) {
	return s.manager.CheckTime(ctx, id)
}

func (s *keyService) Stats(ctx context.Context) (domain.KeyStats, error) {
	return s.manager.Stats(ctx)
}

// ReportStats reads the stats and publishes them as a report event
func (s *keyService) ReportStats(ctx context.Context) (domain.KeyStats, error) {
	st, err := s.manager.Stats(ctx)
	if err != nil {
		return st, err
	}
	s.publish(ctx, events.KeyEvent{
		BaseMessage: s.base(ctx, events.MessageTypeStatsReport),
		Stats:       &st,
	})
	return st, nil
}

// ExpireDue deactivates temporary keys past their expiry
func (s *keyService) ExpireDue(ctx context.Context) ([]string, error) {
	expired, err := s.manager.ExpireDue(ctx)
	if err != nil || len(expired) == 0 {
		return expired, err
	}
	s.logger.InfoContext(ctx, "temporary keys expired", slog.Int("count", len(expired)))
	s.publish(ctx, events.KeyEvent{
		BaseMessage: s.base(ctx, events.MessageTypeKeyExpired),
		Keys:        expired,
		Kind:        domain.KeyKindTemporary,
	})
	return expired, nil
}

// Cleanup removes expired temporary keys
func (s *keyService) Cleanup(ctx context.Context) ([]string, error) {
	removed, err := s.manager.Cleanup(ctx)
	if err != nil || len(removed) == 0 {
		return removed, err
	}
	s.logger.InfoContext(ctx, "expired keys removed", slog.Int("count", len(removed)))
	s.publish(ctx, events.KeyEvent{
		BaseMessage: s.base(ctx, events.MessageTypeKeysCleaned),
		Keys:        removed,
		Kind:        domain.KeyKindTemporary,
	})
	return removed, nil
}

func (s *keyService) base(ctx context.Context, t events.MessageType) events.BaseMessage {
	return events.BaseMessage{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: s.now(),
		TraceID:   infrastructure.GetTraceID(ctx),
	}
}

// publish hands the event off with the request's values but not its
// cancellation, so delivery outlives the response.
func (s *keyService) publish(ctx context.Context, ev events.KeyEvent) {
	s.publisher.Publish(context.WithoutCancel(ctx), ev)
}

func ids(recs []domain.KeyRecord) []string {
	out := make([]string, len(recs))
	for i := range recs {
		out[i] = recs[i].ID
	}
	return out
}
