package user

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/victornm/mockinterview/internal/domain"
)

type mongoUser struct {
	UserID       string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	CreateTime   time.Time `bson:"create_time"`
}

type MongoStore struct {
	col *mongo.Collection
}

// NewMongoStore ensures the unique email index on col.
func NewMongoStore(ctx context.Context, col *mongo.Collection) (*MongoStore, error) {
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create email index: %w", err)
	}

	return &MongoStore{col: col}, nil
}

func (s *MongoStore) Create(ctx context.Context, u domain.User) error {
	doc := mongoUser{
		UserID:       u.UserID,
		Email:        NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreateTime:   u.CreateTime.UTC(),
	}

	_, err := s.col.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return errAlreadyExists(err)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (s *MongoStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var doc mongoUser
	err := s.col.FindOne(ctx, bson.M{"email": NormalizeEmail(email)}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errNotFound(err)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	return &domain.User{
		UserID:       doc.UserID,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Role:         domain.Role(doc.Role),
		CreateTime:   doc.CreateTime,
	}, nil
}
