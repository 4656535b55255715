package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
)

// Exercising MongoStore end-to-end requires a live mongod; these cases
// cover the validation path that NewMongoStore runs before ever touching
// the network, plus the default collection names.

func TestNewMongoStore_RequiresClient(t *testing.T) {
	_, err := NewMongoStore(MongoOptions{Database: "superagent"})
	assert.Error(t, err)
}

func TestNewMongoStore_RequiresDatabase(t *testing.T) {
	_, err := NewMongoStore(MongoOptions{Client: &mongodriver.Client{}, Database: ""})
	assert.Error(t, err)
}

func TestMongoOptions_Defaults(t *testing.T) {
	// defaultSessionsCollection/defaultCheckpointsCollection are applied
	// inside NewMongoStore; assert their literal values stay what
	// operators configuring an existing deployment would expect.
	assert.Equal(t, "sessions", defaultSessionsCollection)
	assert.Equal(t, "checkpoints", defaultCheckpointsCollection)
}
