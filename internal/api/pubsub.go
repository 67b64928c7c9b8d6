package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/mockinterview/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	ResultRecorded struct {
		SessionID    string         `json:"session_id"`
		Email        string         `json:"email"`
		Summary      domain.Summary `json:"summary"`
		CompleteTime time.Time      `json:"complete_time"`
	}
)

// PublishResultRecorded notifies recruiters and the candidate that a result
// is available.
func (a *API) PublishResultRecorded(ctx context.Context, e domain.EventResultRecorded) error {
	r := e.Result

	data := ResultRecorded{
		SessionID:    r.SessionID,
		Email:        r.Email,
		Summary:      r.Summary,
		CompleteTime: r.CompleteTime,
	}

	channels := []string{
		a.RecruitersChannel(),
		a.UserChannel(r.Email),
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, ch := range channels {
		eg.Go(func() error {
			return a.publishNotification(ctx, ch, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) RecruitersChannel() string {
	return fmt.Sprintf("%s:recruiters", a.prefix)
}

func (a *API) UserChannel(email string) string {
	return fmt.Sprintf("%s:user:%s", a.prefix, email)
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
