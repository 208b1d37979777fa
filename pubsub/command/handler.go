package command

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

type AssetOracle interface {
	FetchAsset(ctx context.Context, assetID string) (entity.AssetSnapshot, error)
}

type AssetMirrorRepository interface {
	Upsert(ctx context.Context, mirror entity.AssetMirror) error
}

type Handler struct {
	oracle     AssetOracle
	mirrorRepo AssetMirrorRepository
}

func NewHandler(oracle AssetOracle, mirrorRepo AssetMirrorRepository) Handler {
	if oracle == nil {
		panic("missing oracle")
	}
	if mirrorRepo == nil {
		panic("missing mirrorRepo")
	}

	return Handler{
		oracle:     oracle,
		mirrorRepo: mirrorRepo,
	}
}

func NewProcessorConfig(redisClient *redis.Client, watermillLogger watermill.LoggerAdapter) cqrs.CommandProcessorConfig {
	return cqrs.CommandProcessorConfig{
		SubscriberConstructor: func(params cqrs.CommandProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        redisClient,
				ConsumerGroup: "svc-parchi." + params.HandlerName,
			}, watermillLogger)
		},
		GenerateSubscribeTopic: func(params cqrs.CommandProcessorGenerateSubscribeTopicParams) (string, error) {
			return bus.CommandTopicPrefix + params.CommandName, nil
		},
		Marshaler: bus.Marshaler,
		Logger: watermillLogger,
	}
}
