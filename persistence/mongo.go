package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultSessionsCollection    = "sessions"
	defaultCheckpointsCollection = "checkpoints"
	defaultMongoOpTimeout        = 5 * time.Second
)

// MongoStore is a Store backed by MongoDB, for deployments standardized
// on a document database rather than a relational one. Grounded on the
// session-store Mongo client shape from the pack: a thin wrapper over two
// collections, upserting by a natural id rather than relying on Mongo's
// own ObjectID.
type MongoStore struct {
	client      *mongodriver.Client
	sessions    *mongodriver.Collection
	checkpoints *mongodriver.Collection
	timeout     time.Duration
}

// MongoOptions configures the Mongo-backed store.
type MongoOptions struct {
	Client                *mongodriver.Client
	Database              string
	SessionsCollection    string
	CheckpointsCollection string
	Timeout               time.Duration
}

// NewMongoStore wraps an already-connected *mongodriver.Client. The
// caller owns the client's lifecycle beyond Close, which only releases
// the collection handles, not the underlying connection — the same
// division of responsibility the pack's session Mongo client uses.
func NewMongoStore(opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("persistence: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("persistence: database name is required")
	}
	sessionsName := opts.SessionsCollection
	if sessionsName == "" {
		sessionsName = defaultSessionsCollection
	}
	checkpointsName := opts.CheckpointsCollection
	if checkpointsName == "" {
		checkpointsName = defaultCheckpointsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMongoOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	return &MongoStore{
		client:      opts.Client,
		sessions:    db.Collection(sessionsName),
		checkpoints: db.Collection(checkpointsName),
		timeout:     timeout,
	}, nil
}

func (m *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.timeout)
}

// mongoSessionDoc and mongoCheckpointDoc are the BSON document shapes;
// Messages/State are stored pre-marshaled to JSON so a Mongo-native
// client inspecting the collection directly sees the same bytes a
// FileStore or SQLStore round-trips.
type mongoSessionDoc struct {
	SessionID string    `bson:"session_id"`
	Timestamp time.Time `bson:"timestamp"`
	Model     string    `bson:"model"`
	Messages  []byte    `bson:"messages"`
	Profile   string    `bson:"profile,omitempty"`
}

type mongoCheckpointDoc struct {
	CheckpointID string    `bson:"checkpoint_id"`
	SessionID    string    `bson:"session_id"`
	CreatedAt    time.Time `bson:"created_at"`
	Description  string    `bson:"description,omitempty"`
	State        []byte    `bson:"state"`
}

func (m *MongoStore) SaveSession(ctx context.Context, snap SessionSnapshot) error {
	messages, err := json.Marshal(snap.Messages)
	if err != nil {
		return err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	doc := mongoSessionDoc{
		SessionID: snap.SessionID,
		Timestamp: snap.Timestamp,
		Model:     snap.Model,
		Messages:  messages,
		Profile:   snap.Profile,
	}
	_, err = m.sessions.ReplaceOne(ctx,
		bson.M{"session_id": snap.SessionID}, doc,
		options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) LoadSession(ctx context.Context, sessionID string) (SessionSnapshot, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc mongoSessionDoc
	err := m.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return SessionSnapshot{}, &ErrNotFound{Kind: "session", ID: sessionID}
	}
	if err != nil {
		return SessionSnapshot{}, err
	}
	snap := SessionSnapshot{SessionID: doc.SessionID, Timestamp: doc.Timestamp, Model: doc.Model, Profile: doc.Profile}
	if err := json.Unmarshal(doc.Messages, &snap.Messages); err != nil {
		return SessionSnapshot{}, err
	}
	return snap, nil
}

func (m *MongoStore) SaveCheckpoint(ctx context.Context, cp PersistedCheckpoint) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	doc := mongoCheckpointDoc{
		CheckpointID: cp.CheckpointID,
		SessionID:    cp.SessionID,
		CreatedAt:    cp.CreatedAt,
		Description:  cp.Description,
		State:        []byte(cp.State),
	}
	_, err := m.checkpoints.ReplaceOne(ctx,
		bson.M{"checkpoint_id": cp.CheckpointID}, doc,
		options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) LoadCheckpoint(ctx context.Context, checkpointID string) (PersistedCheckpoint, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc mongoCheckpointDoc
	err := m.checkpoints.FindOne(ctx, bson.M{"checkpoint_id": checkpointID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return PersistedCheckpoint{}, &ErrNotFound{Kind: "checkpoint", ID: checkpointID}
	}
	if err != nil {
		return PersistedCheckpoint{}, err
	}
	return PersistedCheckpoint{
		CheckpointID: doc.CheckpointID,
		SessionID:    doc.SessionID,
		CreatedAt:    doc.CreatedAt,
		Description:  doc.Description,
		State:        json.RawMessage(doc.State),
	}, nil
}

func (m *MongoStore) ListCheckpoints(ctx context.Context, sessionID string) ([]PersistedCheckpoint, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	cur, err := m.checkpoints.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []PersistedCheckpoint
	for cur.Next(ctx) {
		var doc mongoCheckpointDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, PersistedCheckpoint{
			CheckpointID: doc.CheckpointID,
			SessionID:    doc.SessionID,
			CreatedAt:    doc.CreatedAt,
			Description:  doc.Description,
			State:        json.RawMessage(doc.State),
		})
	}
	return out, cur.Err()
}

func (m *MongoStore) Close() error {
	return nil
}
