package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/mockinterview/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			opts        []event.Option
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber should only receive events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						namedEvent("interview.completed"),
						namedEvent("result.recorded"),
					},
					subscribers: []subscriber{
						{name: "results", subscribeTo: []string{"interview.completed"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{namedEvent("interview.completed")}, out.received["results"])
			},
		},

		"an event should be dispatched to all subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						namedEvent("result.recorded"),
					},
					subscribers: []subscriber{
						{name: "api", subscribeTo: []string{"result.recorded"}},
						{name: "metrics", subscribeTo: []string{"result.recorded"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["api"], 1)
				assert.Len(t, out.received["metrics"], 1)
			},
		},

		"a failing subscriber should not stop others from receiving": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						namedEvent("e1"),
						namedEvent("e1"),
					},
					subscribers: []subscriber{
						{name: "broken", subscribeTo: []string{"e1"}, fail: true},
						{name: "ok", subscribeTo: []string{"e1"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["ok"], 2)
			},
		},

		"a panicking subscriber should be recovered": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						namedEvent("e1"),
					},
					subscribers: []subscriber{
						{name: "panics", subscribeTo: []string{"e1"}, panics: true},
						{name: "ok", subscribeTo: []string{"e1"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["ok"], 1)
			},
		},

		"a pool of one should still deliver every event": {
			arrange: func() inputs {
				return inputs{
					opts: []event.Option{event.WithPoolSize(1), event.WithTimeout(time.Second)},
					published: []event.Event{
						namedEvent("e1"),
						namedEvent("e2"),
						namedEvent("e1"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"e1", "e2"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{namedEvent("e1"), namedEvent("e1"), namedEvent("e2")}, out.received["s1"])
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus(in.opts...)
			for _, s := range in.subscribers {
				for _, name := range s.subscribeTo {
					b.Subscribe(name, func(ctx context.Context, e event.Event) error {
						if s.panics {
							panic("subscriber exploded")
						}
						if s.fail {
							return errors.New("subscriber failed")
						}

						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

type namedEvent string

func (e namedEvent) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
	fail        bool
	panics      bool
}
