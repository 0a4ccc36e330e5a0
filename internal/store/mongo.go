package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/logging"
)

// Mongo stores one document per owner in a single collection with a unique
// index on username.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    logging.Logger
}

// NewMongo connects, pings and ensures indexes.
func NewMongo(ctx context.Context, cfg MongoConfig, log logging.Logger) (*Mongo, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMongoTimeout
	}
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	m := &Mongo{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		log:    log,
	}
	if err := m.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.Info("connected to mongo", "database", cfg.Database, "collection", cfg.Collection)
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("username_unique"),
		},
		{
			Keys:    bson.D{{Key: "accessList", Value: 1}},
			Options: options.Index().SetName("access_list"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create mongo indexes: %w", err)
	}
	return nil
}

type byUsername struct {
	Username string `bson:"username"`
}

type byAccess struct {
	AccessList string `bson:"accessList"`
}

// accessFields is the subset of the owner document rewritten by Update.
type accessFields struct {
	AccessRestricted bool           `bson:"accessRestricted"`
	AccessList       []string       `bson:"accessList"`
	Groups           []access.Group `bson:"groups"`
	GroupsWithAccess []string       `bson:"groupsWithAccess"`
	DirectGrants     []string       `bson:"directGrants"`
	UpdatedAt        time.Time      `bson:"updatedAt"`
}

type setOp struct {
	Set accessFields `bson:"$set"`
}

func updateDoc(o *access.Owner) setOp {
	return setOp{Set: accessFields{
		AccessRestricted: o.AccessRestricted,
		AccessList:       o.AccessList,
		Groups:           o.Groups,
		GroupsWithAccess: o.GroupsWithAccess,
		DirectGrants:     o.DirectGrants,
		UpdatedAt:        o.UpdatedAt,
	}}
}

// searchFilter narrows a search server-side. Substring queries match
// exactly; glob queries are narrowed to their literal prefix and filtered
// with SearchQuery.Match afterwards.
func searchFilter(q access.SearchQuery) bson.D {
	if !q.IsGlob() {
		return bson.D{{Key: "username", Value: primitive.Regex{Pattern: regexp.QuoteMeta(q.Text), Options: "i"}}}
	}
	prefix := q.LiteralPrefix()
	if prefix == "" {
		return bson.D{}
	}
	return bson.D{{Key: "username", Value: primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix), Options: "i"}}}
}

func (m *Mongo) Get(ctx context.Context, username string) (*access.Owner, error) {
	var o access.Owner
	if err := m.coll.FindOne(ctx, byUsername{Username: username}).Decode(&o); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(username)
		}
		return nil, fmt.Errorf("failed to load owner %s: %w", username, err)
	}
	return &o, nil
}

func (m *Mongo) Create(ctx context.Context, owner *access.Owner) error {
	if _, err := m.coll.InsertOne(ctx, owner); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return alreadyExists(owner.Username)
		}
		return fmt.Errorf("failed to insert owner %s: %w", owner.Username, err)
	}
	return nil
}

// Update persists the access fields with a single $set. Concurrent updates
// to the same owner are last-write-wins.
func (m *Mongo) Update(ctx context.Context, username string, mutate func(*access.Owner) error) (*access.Owner, error) {
	o, err := m.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := mutate(o); err != nil {
		return nil, err
	}
	res, err := m.coll.UpdateOne(ctx, byUsername{Username: username}, updateDoc(o))
	if err != nil {
		return nil, fmt.Errorf("failed to update owner %s: %w", username, err)
	}
	if res.MatchedCount == 0 {
		return nil, notFound(username)
	}
	return o, nil
}

func (m *Mongo) FindByAccess(ctx context.Context, visitor string) ([]*access.Owner, error) {
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}})
	cur, err := m.coll.Find(ctx, byAccess{AccessList: visitor}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find owners granting %s: %w", visitor, err)
	}
	var owners []*access.Owner
	if err := cur.All(ctx, &owners); err != nil {
		return nil, fmt.Errorf("failed to decode owners: %w", err)
	}
	return owners, nil
}

func (m *Mongo) Search(ctx context.Context, q access.SearchQuery) ([]*access.Owner, error) {
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}})
	if !q.IsGlob() {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := m.coll.Find(ctx, searchFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search owners: %w", err)
	}
	defer cur.Close(ctx)

	owners := make([]*access.Owner, 0, q.Limit)
	for cur.Next(ctx) && len(owners) < q.Limit {
		var o access.Owner
		if err := cur.Decode(&o); err != nil {
			return nil, fmt.Errorf("failed to decode owner: %w", err)
		}
		if q.Match(o.Username) {
			owners = append(owners, &o)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to search owners: %w", err)
	}
	return owners, nil
}

func (m *Mongo) Count(ctx context.Context) (int64, error) {
	n, err := m.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}
	m.log.Info("disconnected from mongo")
	return nil
}
