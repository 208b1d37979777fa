package event

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"parchi/entity"
	"parchi/pubsub/bus"
)

type AuditRepository interface {
	StoreEvent(ctx context.Context, event entity.AuditEvent) error
}

type CommandSender interface {
	Send(ctx context.Context, command any) error
}

type Handler struct {
	auditRepo  AuditRepository
	commandBus CommandSender
}

func NewHandler(auditRepo AuditRepository, commandBus CommandSender) Handler {
	if auditRepo == nil {
		panic("missing auditRepo")
	}
	if commandBus == nil {
		panic("missing commandBus")
	}

	return Handler{
		auditRepo:  auditRepo,
		commandBus: commandBus,
	}
}

func NewProcessorConfig(redisClient *redis.Client, watermillLogger watermill.LoggerAdapter) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        redisClient,
				ConsumerGroup: "svc-parchi." + params.HandlerName,
			}, watermillLogger)
		},
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return bus.EventTopicPrefix + params.EventName, nil
		},
		Marshaler: bus.Marshaler,
		Logger: watermillLogger,
	}
}
