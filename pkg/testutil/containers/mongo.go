//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"trialstore/internal/platform/config"
	platformmongo "trialstore/internal/platform/mongo"
)

const mongoTestDatabase = "clinical_trials_test"

// MongoContainer wraps a testcontainers MongoDB instance connected through the
// server's client constructor.
type MongoContainer struct {
	Container testcontainers.Container
	URI       string
	Client    *platformmongo.Client
}

// NewMongoContainer starts MongoDB and connects a client to it.
func NewMongoContainer(t *testing.T) *MongoContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("failed to start mongo container: %v", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get mongo connection string: %v", err)
	}

	client, err := platformmongo.New(ctx, config.Store{
		Backend:  "mongo",
		Database: mongoTestDatabase,
		MongoURL: uri,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to mongo: %v", err)
	}

	return &MongoContainer{Container: container, URI: uri, Client: client}
}

// DropDatabase removes the test database.
func (m *MongoContainer) DropDatabase(ctx context.Context) error {
	return m.Client.Database.Drop(ctx)
}
