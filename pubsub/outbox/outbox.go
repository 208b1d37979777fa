// Package outbox stores events in Postgres within the publishing
// transaction and forwards them to redis afterwards, so an event exists iff
// the transaction committed.
package outbox

import (
	stdSQL "database/sql"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const topic = "events_to_forward"

// NewPublisherForTx returns a publisher that writes enveloped messages to
// the outbox table inside the given transaction.
func NewPublisherForTx(tx *stdSQL.Tx) (message.Publisher, error) {
	sqlPublisher, err := sql.NewPublisher(
		tx,
		sql.PublisherConfig{
			SchemaAdapter: sql.DefaultPostgreSQLSchema{},
		},
		watermill.NopLogger{},
	)
	if err != nil {
		return nil, err
	}

	return forwarder.NewPublisher(sqlPublisher, forwarder.PublisherConfig{
		ForwarderTopic: topic,
	}), nil
}

// InitializeSchema creates the outbox table. The in-tx publisher cannot
// create it itself, so this must run before the first publish.
func InitializeSchema(db *sqlx.DB) error {
	sub, err := sql.NewSubscriber(db.DB, sql.SubscriberConfig{
		SchemaAdapter:    sql.DefaultPostgreSQLSchema{},
		OffsetsAdapter:   sql.DefaultPostgreSQLOffsetsAdapter{},
		InitializeSchema: true,
	}, watermill.NopLogger{})
	if err != nil {
		return err
	}

	return sub.SubscribeInitialize(topic)
}

// NewForwarder drains the outbox table and republishes each message to its
// original redis topic. Run it alongside the watermill router.
func NewForwarder(db *sqlx.DB, rdb *redis.Client, logger watermill.LoggerAdapter) (*forwarder.Forwarder, error) {
	sub, err := sql.NewSubscriber(db.DB, sql.SubscriberConfig{
		SchemaAdapter:    sql.DefaultPostgreSQLSchema{},
		OffsetsAdapter:   sql.DefaultPostgreSQLOffsetsAdapter{},
		InitializeSchema: true,
	}, logger)
	if err != nil {
		return nil, err
	}

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return nil, err
	}

	return forwarder.NewForwarder(sub, pub, logger, forwarder.Config{
		ForwarderTopic: topic,
	})
}
