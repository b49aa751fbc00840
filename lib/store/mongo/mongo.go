// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agrimart/bridge/lib/store"
)

const db = "agrimart"

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// mongoUser implements a credential row in MongoDB.
type mongoUser struct {
	Username     string `bson:"username"`
	PasswordHash string `bson:"hash"`
	SignerID     uint32 `bson:"signerId"`
}

// mongoIntent implements a registration intent in MongoDB.
type mongoIntent struct {
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"hash"`
	State        int       `bson:"state"`
	Updated      time.Time `bson:"updated"`
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	// usernames are unique in both collections
	for _, col := range []string{"users", "intents"} {
		_, err = c.Database(db).Collection(col).Indexes().CreateOne(ctx, mgo.IndexModel{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return nil, fmt.Errorf("error creating %s index: %w", col, err)
		}
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// FindUser returns the credential row for username.
func (m *Mongo) FindUser(ctx context.Context, username string) (store.User, error) {
	var mu mongoUser

	sr := m.c.Database(db).Collection("users").FindOne(ctx, bson.M{"username": username})
	if err := sr.Decode(&mu); err != nil {
		if errors.Is(err, mgo.ErrNoDocuments) {
			return store.User{Username: username}, store.ErrUserNotFound
		}

		return store.User{}, fmt.Errorf("could not query user: %w", err)
	}

	return store.User{Username: mu.Username, PasswordHash: mu.PasswordHash, SignerID: mu.SignerID}, nil
}

// InsertUser creates the credential row with a fresh signer id from the counters
// collection. The unique index is the last line of defense against racing inserts.
func (m *Mongo) InsertUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	id, err := m.nextSignerID(ctx)
	if err != nil {
		return store.User{}, err
	}

	u := store.User{Username: username, PasswordHash: passwordHash, SignerID: id}

	_, err = m.c.Database(db).Collection("users").InsertOne(ctx,
		mongoUser{Username: username, PasswordHash: passwordHash, SignerID: id})
	if err != nil {
		if mgo.IsDuplicateKeyError(err) {
			return u, store.ErrUserExists
		}

		return u, fmt.Errorf("could not insert user: %w", err)
	}

	return u, nil
}

// nextSignerID atomically increments the signer id sequence. Ids are never reused even
// when the insert that consumed one fails.
func (m *Mongo) nextSignerID(ctx context.Context) (uint32, error) {
	var seq struct {
		Seq uint32 `bson:"seq"`
	}

	err := m.c.Database(db).Collection("counters").FindOneAndUpdate(ctx,
		bson.M{"_id": "signerId"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).
		Decode(&seq)
	if err != nil {
		return 0, fmt.Errorf("could not get next signer id: %w", err)
	}

	return seq.Seq, nil
}

// PutIntent writes or refreshes a pending registration intent.
func (m *Mongo) PutIntent(ctx context.Context, username, passwordHash string) error {
	_, err := m.c.Database(db).Collection("intents").UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{
			"hash":    passwordHash,
			"state":   store.IntentPending,
			"updated": time.Now().UTC(),
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not write intent: %w", err)
	}

	return nil
}

// SetIntentState advances an intent through the two-phase sequence.
func (m *Mongo) SetIntentState(ctx context.Context, username string, state int) error {
	res, err := m.c.Database(db).Collection("intents").UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"state": state, "updated": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("could not update intent: %w", err)
	}

	if res.MatchedCount == 0 {
		return store.ErrIntentNotFound
	}

	return nil
}

// DeleteIntent removes a completed or discarded intent.
func (m *Mongo) DeleteIntent(ctx context.Context, username string) error {
	_, err := m.c.Database(db).Collection("intents").DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return fmt.Errorf("could not delete intent: %w", err)
	}

	return nil
}

// ListIntents returns all surviving intents, oldest first.
func (m *Mongo) ListIntents(ctx context.Context) ([]store.RegIntent, error) {
	cur, err := m.c.Database(db).Collection("intents").Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updated", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("could not list intents: %w", err)
	}
	defer cur.Close(ctx)

	intents := []store.RegIntent{}

	for cur.Next(ctx) {
		var mi mongoIntent
		if err = cur.Decode(&mi); err != nil {
			return nil, fmt.Errorf("could not decode intent: %w", err)
		}

		intents = append(intents, store.RegIntent{
			Username:     mi.Username,
			PasswordHash: mi.PasswordHash,
			State:        mi.State,
			Updated:      mi.Updated,
		})
	}

	return intents, cur.Err()
}
