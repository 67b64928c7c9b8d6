// Package results keeps completed interviews in Redis for recruiters.
package results

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
	"github.com/victornm/mockinterview/internal/event"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	// TTL expires stored results. Zero keeps them forever.
	TTL time.Duration
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}

	s.eb.Subscribe(domain.EventNameInterviewCompleted, func(ctx context.Context, e event.Event) error {
		return s.RecordResult(ctx, e.(domain.EventInterviewCompleted))
	})

	return s
}

// RecordResult stores the result and indexes it by completion time, both
// globally and per candidate.
func (s *Service) RecordResult(ctx context.Context, e domain.EventInterviewCompleted) error {
	r := e.Result

	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", r.SessionID, err)
	}

	z := redis.Z{
		Score:  float64(r.CompleteTime.UnixMilli()),
		Member: r.SessionID,
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.resultKey(r.SessionID), b, s.ttl)
	pipe.ZAdd(ctx, s.resultsKey(), z)
	pipe.ZAdd(ctx, s.candidateKey(r.Email), z)

	// TODO: retry on error
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record result %s: %w", r.SessionID, err)
	}

	s.eb.Publish(ctx, domain.EventResultRecorded{
		Result: r,
	})

	return nil
}

type ListResultsRequest struct {
	// Email narrows the list to one candidate when set.
	Email string
	Limit int
}

// ListResults returns stored results, newest first.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) ([]domain.Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	key := s.resultsKey()
	if req.Email != "" {
		key = s.candidateKey(req.Email)
	}

	ids, err := s.redis.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list result ids: %w", err)
	}

	if len(ids) == 0 {
		return []domain.Result{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, pipe.Get(ctx, s.resultKey(id)))
	}

	if _, err := pipe.Exec(ctx); err != nil && !stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get results: %w", err)
	}

	out := make([]domain.Result, 0, len(ids))
	for _, cmd := range cmds {
		b, err := cmd.Bytes()
		if stderrors.Is(err, redis.Nil) {
			// expired, the index entry is left behind
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get result: %w", err)
		}

		var r domain.Result
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, r)
	}

	return out, nil
}

type GetResultRequest struct {
	SessionID string
}

func (s *Service) GetResult(ctx context.Context, req GetResultRequest) (*domain.Result, error) {
	b, err := s.redis.Get(ctx, s.resultKey(req.SessionID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("result not found: session=%s", req.SessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}

	var r domain.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}

	return &r, nil
}

func (s *Service) resultKey(session string) string {
	return fmt.Sprintf("%s:result:%s", s.prefix, session)
}

func (s *Service) resultsKey() string {
	return fmt.Sprintf("%s:results", s.prefix)
}

func (s *Service) candidateKey(email string) string {
	return fmt.Sprintf("%s:candidate:%s", s.prefix, email)
}
