package profilestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const profileCollection = "profiles"

type profileDocument struct {
	IdentityID  string            `bson:"_id"`
	Email       string            `bson:"email"`
	DisplayName string            `bson:"display_name"`
	RoleFlags   int64             `bson:"role_flags"`
	IsVerified  bool              `bson:"is_verified"`
	Providers   map[string]string `bson:"providers"`
	CreatedAt   time.Time         `bson:"created_at"`
	LastLoginAt time.Time         `bson:"last_login_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

// MongoStore implements [goIdentity.ProfileStore] on a MongoDB collection.
// Each external provider subject is held unique by a sparse index on
// providers.<kind>.
type MongoStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoStore ensures the provider indexes exist and returns the store.
func NewMongoStore(ctx context.Context, logger *zerolog.Logger, db *mongo.Database) (*MongoStore, error) {
	collection := db.Collection(profileCollection)

	indexes := make([]mongo.IndexModel, 0, 2)
	for _, kind := range []goIdentity.ProviderKind{goIdentity.ProviderOAuthA, goIdentity.ProviderOAuthB} {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: providerField(kind), Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		})
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("failed to create profile indexes")
		}
		return nil, fmt.Errorf("create profile indexes: %w", err)
	}

	return &MongoStore{collection: collection, now: time.Now}, nil
}

func (s *MongoStore) Get(ctx context.Context, identityID string) (*goIdentity.RemoteProfile, error) {
	return s.findOne(ctx, bson.M{"_id": identityID})
}

func (s *MongoStore) FindByProvider(ctx context.Context, kind goIdentity.ProviderKind, subjectID string) (*goIdentity.RemoteProfile, error) {
	if subjectID == "" {
		return nil, goIdentity.ErrNotFound
	}
	return s.findOne(ctx, bson.M{providerField(kind): subjectID})
}

func (s *MongoStore) Create(ctx context.Context, profile goIdentity.RemoteProfile) error {
	doc := toDocument(profile)
	doc.UpdatedAt = s.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return goIdentity.ErrAccountExists
		}
		return err
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, identityID string, update goIdentity.ProfileUpdate) error {
	set := updateSet(update)
	set["updated_at"] = s.now()

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": identityID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return goIdentity.ErrNotFound
	}
	return nil
}

// LinkProvider sets providers.<kind>. A unique-index violation means the
// subject belongs to another profile unless it resolves back to identityID.
func (s *MongoStore) LinkProvider(ctx context.Context, identityID string, kind goIdentity.ProviderKind, subjectID string) error {
	result, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": identityID},
		bson.M{"$set": bson.M{providerField(kind): subjectID, "updated_at": s.now()}},
	)
	if err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return err
		}
		owner, findErr := s.FindByProvider(ctx, kind, subjectID)
		if findErr == nil && owner.IdentityID == identityID {
			return nil
		}
		return goIdentity.ErrCredentialConflict
	}
	if result.MatchedCount == 0 {
		return goIdentity.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, identityID string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": identityID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return goIdentity.ErrNotFound
	}
	return nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*goIdentity.RemoteProfile, error) {
	var doc profileDocument
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, goIdentity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	profile := fromDocument(doc)
	return &profile, nil
}

func providerField(kind goIdentity.ProviderKind) string {
	return "providers." + string(kind)
}

func updateSet(update goIdentity.ProfileUpdate) bson.M {
	set := bson.M{}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.DisplayName != nil {
		set["display_name"] = *update.DisplayName
	}
	if update.RoleFlags != nil {
		set["role_flags"] = int64(update.RoleFlags.Raw())
	}
	if update.IsVerified != nil {
		set["is_verified"] = *update.IsVerified
	}
	if update.LastLoginAt != nil {
		set["last_login_at"] = *update.LastLoginAt
	}
	return set
}

func toDocument(p goIdentity.RemoteProfile) profileDocument {
	providers := make(map[string]string, len(p.Providers))
	for kind, subject := range p.Providers {
		providers[string(kind)] = subject
	}
	return profileDocument{
		IdentityID:  p.IdentityID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		RoleFlags:   int64(p.RoleFlags.Raw()),
		IsVerified:  p.IsVerified,
		Providers:   providers,
		CreatedAt:   p.CreatedAt,
		LastLoginAt: p.LastLoginAt,
	}
}

func fromDocument(doc profileDocument) goIdentity.RemoteProfile {
	providers := make(map[goIdentity.ProviderKind]string, len(doc.Providers))
	for kind, subject := range doc.Providers {
		providers[goIdentity.ProviderKind(kind)] = subject
	}
	return goIdentity.RemoteProfile{
		IdentityID:  doc.IdentityID,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		RoleFlags:   permission.Flags(doc.RoleFlags),
		IsVerified:  doc.IsVerified,
		Providers:   providers,
		CreatedAt:   doc.CreatedAt,
		LastLoginAt: doc.LastLoginAt,
	}
}
