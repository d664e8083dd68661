package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"verifiedid/issuer/internal/model"
	"verifiedid/issuer/internal/repository"
	"verifiedid/issuer/pkg/crypto"
)

const (
	sessionKeyPrefix   = "issuance:"
	sessionLockStripes = 64
)

// SessionService tracks the progress of issuance requests by correlation id.
type SessionService interface {
	Create(ctx context.Context) (string, error)
	ApplyCallback(ctx context.Context, id string, status model.RequestStatus, detail string) error
	// Status returns (nil, nil) when the id is unknown or expired.
	Status(ctx context.Context, id string) (*model.IssuanceSession, error)
}

type sessionService struct {
	store  repository.StateStore
	ttl    time.Duration
	logger *zap.Logger
	locks  [sessionLockStripes]sync.Mutex
}

func NewSessionService(store repository.StateStore, ttl time.Duration, logger *zap.Logger) SessionService {
	return &sessionService{store: store, ttl: ttl, logger: logger}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func (s *sessionService) Create(ctx context.Context) (string, error) {
	id, err := crypto.GenerateCorrelationID()
	if err != nil {
		return "", fmt.Errorf("generate correlation id: %w", err)
	}
	session := &model.IssuanceSession{
		Status:  model.StatusRequestCreated,
		Message: model.MessageRequestCreated,
	}
	if err := s.save(ctx, id, session); err != nil {
		return "", err
	}
	return id, nil
}

func (s *sessionService) ApplyCallback(ctx context.Context, id string, status model.RequestStatus, detail string) error {
	next, err := sessionForCallback(status, detail)
	if err != nil {
		return err
	}

	// Callbacks for one id are serialized so the stage check and the write
	// observe the same record.
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.Status(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		s.logger.Info("callback for unknown state", zap.String("state", id))
		return ErrUnknownCorrelation
	}
	if status != current.Status && status.Stage() <= current.Status.Stage() {
		s.logger.Warn("rejected status regression",
			zap.String("state", id),
			zap.String("current", string(current.Status)),
			zap.String("requested", string(status)),
		)
		return ErrStatusRegression
	}
	return s.save(ctx, id, next)
}

func (s *sessionService) Status(ctx context.Context, id string) (*model.IssuanceSession, error) {
	if id == "" {
		return nil, nil
	}
	data, err := s.store.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	session, err := model.UnmarshalIssuanceSession(data)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *sessionService) save(ctx context.Context, id string, session *model.IssuanceSession) error {
	data, err := session.Marshal()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.store.Set(ctx, sessionKey(id), data, s.ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *sessionService) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%sessionLockStripes]
}

func sessionForCallback(status model.RequestStatus, detail string) (*model.IssuanceSession, error) {
	var message string
	switch status {
	case model.StatusRequestRetrieved:
		message = model.MessageRequestRetrieved
	case model.StatusIssuanceSuccessful:
		message = model.MessageIssuanceSuccessful
	case model.StatusIssuanceError:
		message = detail
	default:
		return nil, ErrUnsupportedStatus
	}
	return &model.IssuanceSession{Status: status, Message: message}, nil
}
