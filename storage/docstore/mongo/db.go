package mongorepos

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/feeded/core"
)

// collection names
const (
	collectionUsers    = "users"
	collectionPrograms = "programs"
	collectionStudents = "students"
	collectionForms    = "forms"
)

// DB is a connected document store.
type DB struct {
	Client *mongo.Client
	name   string
	log    core.Logger
}

// Connect connects to conf.Database.MongoURI, pings the server and ensures the indexes.
func Connect(ctx context.Context, conf *core.Config, logger core.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, conf.Database.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx,
		options.Client().ApplyURI(conf.Database.MongoURI),
		options.Client().SetTimeout(conf.Database.Timeout),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}

	db := &DB{Client: client, name: conf.Database.Name, log: logger}
	db.ensureIndexes(ctx)
	return db, nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

func (db *DB) collection(name string) *mongo.Collection {
	return db.Client.Database(db.name).Collection(name)
}

func (db *DB) ensureIndexes(ctx context.Context) {
	indexes := map[string][]mongo.IndexModel{
		collectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collectionPrograms: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		collectionStudents: {
			{Keys: bson.D{{Key: "program_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		collectionForms: {
			{Keys: bson.D{{Key: "program_id", Value: 1}, {Key: "form_type", Value: 1}, {Key: "submitted_at", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := db.collection(name).Indexes().CreateMany(ctx, models); err != nil {
			db.log.Error("mongo: creating indexes for "+name, err)
		}
	}
}
