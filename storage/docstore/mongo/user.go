package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/feeded/core/user"
)

type userDoc struct {
	ID           string     `bson:"_id"`
	Email        string     `bson:"email"`
	Name         string     `bson:"name"`
	IsActive     bool       `bson:"is_active"`
	PasswordHash []byte     `bson:"password_hash,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
	LastLogin    *time.Time `bson:"last_login,omitempty"`
}

func toUserDoc(usr user.User) userDoc {
	return userDoc{
		ID:           usr.ID,
		Email:        usr.Email,
		Name:         usr.Name,
		IsActive:     usr.IsActive,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    timePtr(usr.LastLogin),
	}
}

func (d userDoc) user() user.User {
	return user.User{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		IsActive:     d.IsActive,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
		LastLogin:    timeVal(d.LastLogin),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{coll: db.collection(collectionUsers)}
}

func (repo *userRepository) findOne(ctx context.Context, filter bson.M, msg string) (user.User, error) {
	var doc userDoc
	if err := repo.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, msg)
	}
	return doc.user(), nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if _, err := repo.coll.InsertOne(ctx, toUserDoc(usr)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, id string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"_id": id}, "finding user by ID")
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"email": email}, "finding user by email")
}

func (repo *userRepository) QueryUsers(ctx context.Context) ([]user.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := repo.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	users := make([]user.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": usr.ID}, toUserDoc(usr))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if res.MatchedCount == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
