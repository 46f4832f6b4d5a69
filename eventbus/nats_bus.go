package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus publishes pipeline progress over NATS core subjects.
type NATSBus struct {
	nc      *nats.Conn
	subject string
}

type NATSConfig struct {
	URL     string
	Subject string
}

func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("bankflow-progress"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "bankflow.progress"
	}
	return &NATSBus{nc: nc, subject: subject}, nil
}

func (b *NATSBus) Publish(ctx context.Context, evt ProgressEvent) error {
	if evt.EventID == "" {
		evt.EventID = NewEventID("ev_", time.Now())
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if !evt.MinimalValidate() {
		return fmt.Errorf("invalid event: missing required fields")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// PublishFrom is the short form for callers that own their source label.
func (b *NATSBus) PublishFrom(ctx context.Context, source, eventType, recipeID, detail string) error {
	return b.Publish(ctx, ProgressEvent{
		Source:   source,
		Type:     eventType,
		RecipeID: recipeID,
		Detail:   detail,
	})
}

// PublishType is the short form used by the recipe store.
func (b *NATSBus) PublishType(ctx context.Context, eventType, recipeID, detail string) error {
	return b.PublishFrom(ctx, "store", eventType, recipeID, detail)
}

func (b *NATSBus) Subscribe(ctx context.Context, handler func(ProgressEvent)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var evt ProgressEvent
		if err := json.Unmarshal(msg.Data, &evt); err == nil {
			handler(evt)
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

func (b *NATSBus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
