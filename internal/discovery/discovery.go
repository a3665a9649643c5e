// Package discovery announces the device's channels to Home Assistant.
package discovery

import (
	"context"
	"encoding/json"

	"codeberg.org/mutker/mupimqtt/internal/channel"
	"codeberg.org/mutker/mupimqtt/internal/errors"
	"codeberg.org/mutker/mupimqtt/internal/logger"
)

// Sink delivers a payload to a topic.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Publisher sends one discovery document per channel.
type Publisher struct {
	sink     Sink
	identity channel.Identity
	topics   channel.Topics
}

func NewPublisher(sink Sink, identity channel.Identity, topics channel.Topics) *Publisher {
	return &Publisher{sink: sink, identity: identity, topics: topics}
}

// Publish sends the documents of channels in order. Every channel is attempted;
// the returned error joins the failures.
func (p *Publisher) Publish(ctx context.Context, channels []channel.Channel) error {
	errFactory := errors.New()

	var errs []error
	for _, c := range channels {
		topic := p.topics.Discovery(c)

		payload, err := json.Marshal(Build(p.identity, p.topics, c))
		if err != nil {
			errs = append(errs, errFactory.Wrap(errors.ErrInternal, err).WithData(c.Name))
			continue
		}

		if err := p.sink.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, errFactory.Wrap(errors.ErrPublish, err).WithData(topic))
			continue
		}

		logger.Debug().Str("channel", c.Name).Str("topic", topic).Msg("Discovery published")
	}

	return errors.Join(errs...)
}
