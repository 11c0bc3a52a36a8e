package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"trialstore/internal/platform/config"
)

// Client wraps the driver client together with the configured database. The
// docstore built on Database owns disconnecting it.
type Client struct {
	*mongo.Client
	Database *mongo.Database
}

// New connects to cfg.MongoURL and verifies the primary is reachable.
func New(ctx context.Context, cfg config.Store) (*Client, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURL).
		SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	return &Client{Client: client, Database: client.Database(cfg.Database)}, nil
}
