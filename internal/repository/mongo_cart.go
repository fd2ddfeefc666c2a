package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	cartsCollection = "carts"

	watchRetryMin = 100 * time.Millisecond
	watchRetryMax = 5 * time.Second

	// ChangeStreamHistoryLost: the resume token is older than the oplog.
	changeStreamHistoryLost = 286
)

// ConnectMongoDB opens a client suitable for change streams: the deployment must be a replica set.
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("storefront").
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetWriteConcern(writeconcern.Majority()).
		SetRegistry(newMongoRegistry()).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// changeStream is the part of *mongo.ChangeStream the watcher uses.
type changeStream interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	ResumeToken() bson.Raw
	Close(ctx context.Context) error
}

type mongoCartRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger

	openStream func(ctx context.Context, ownerID string, resumeAfter bson.Raw) (changeStream, error)
	retryMin   time.Duration
	retryMax   time.Duration
}

func NewMongoCartRepository(db *mongo.Database, logger *slog.Logger) CartRepository {
	m := &mongoCartRepository{
		collection: db.Collection(cartsCollection),
		logger:     logger,
		retryMin:   watchRetryMin,
		retryMax:   watchRetryMax,
	}
	m.openStream = m.openCartStream
	return m
}

func (m *mongoCartRepository) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func prepareCart(cart *domain.Cart) error {
	if cart.ID == "" {
		return errors.New("cart owner id is required")
	}
	if cart.LastModified.IsZero() {
		cart.LastModified = time.Now().UTC()
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return nil
}

func (m *mongoCartRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if err := prepareCart(cart); err != nil {
		return err
	}

	opts := options.Replace().SetUpsert(true)
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": cart.ID}, cart, opts)
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}

	return nil
}

// SaveCartIfRevision only inserts when expected is 0; a duplicate _id then means
// another writer created the document first.
func (m *mongoCartRepository) SaveCartIfRevision(ctx context.Context, cart *domain.Cart, expected int64) error {
	if err := prepareCart(cart); err != nil {
		return err
	}

	filter := bson.M{"_id": cart.ID, "revision": expected}
	opts := options.Replace().SetUpsert(expected == 0)
	result, err := m.collection.ReplaceOne(ctx, filter, cart, opts)
	if mongo.IsDuplicateKeyError(err) {
		return ErrRevisionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return ErrRevisionConflict
	}

	return nil
}

func (m *mongoCartRepository) DeleteCart(ctx context.Context, ownerID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

type cartChangeEvent struct {
	OperationType string       `bson:"operationType"`
	FullDocument  *domain.Cart `bson:"fullDocument"`
}

// WatchCart opens a change stream filtered to the owner's document. The stream is
// established before returning, so a change written right after WatchCart returns is delivered.
// A broken stream is reopened from its resume token until ctx is done.
func (m *mongoCartRepository) WatchCart(ctx context.Context, ownerID string, fn func(*domain.Cart)) (CancelFunc, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := m.openStream(watchCtx, ownerID, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch cart: %w", err)
	}

	go m.follow(watchCtx, ownerID, stream, fn)

	return CancelFunc(cancel), nil
}

func (m *mongoCartRepository) openCartStream(ctx context.Context, ownerID string, resumeAfter bson.Raw) (changeStream, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "documentKey._id", Value: ownerID},
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if resumeAfter != nil {
		opts.SetResumeAfter(resumeAfter)
	}
	return m.collection.Watch(ctx, pipeline, opts)
}

func (m *mongoCartRepository) follow(ctx context.Context, ownerID string, stream changeStream, fn func(*domain.Cart)) {
	delay := m.retryMin
	for {
		if m.drain(ctx, ownerID, stream, fn) {
			delay = m.retryMin
		}
		token := stream.ResumeToken()
		streamErr := stream.Err()
		_ = stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("cart change stream interrupted, resubscribing", "owner_id", ownerID, "error", streamErr)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, m.retryMax)

			next, err := m.openStream(ctx, ownerID, token)
			if err == nil {
				stream = next
				if token == nil {
					m.resync(ctx, ownerID, fn)
				}
				break
			}
			if ctx.Err() != nil {
				return
			}
			var se mongo.ServerError
			if errors.As(err, &se) && se.HasErrorCode(changeStreamHistoryLost) {
				// start fresh and catch up from the current document
				token = nil
			}
			m.logger.Error("failed to reopen cart change stream", "owner_id", ownerID, "error", err, "retry_in", delay)
		}
	}
}

// drain delivers events until the stream stops; it reports whether anything arrived.
func (m *mongoCartRepository) drain(ctx context.Context, ownerID string, stream changeStream, fn func(*domain.Cart)) bool {
	delivered := false
	for stream.Next(ctx) {
		delivered = true
		var ev cartChangeEvent
		if err := stream.Decode(&ev); err != nil {
			m.logger.Error("failed to decode cart change", "owner_id", ownerID, "error", err)
			continue
		}
		if ev.FullDocument == nil {
			continue
		}
		fn(ev.FullDocument)
	}
	return delivered
}

func (m *mongoCartRepository) resync(ctx context.Context, ownerID string, fn func(*domain.Cart)) {
	cart, err := m.GetCart(ctx, ownerID)
	if errors.Is(err, ErrCartNotFound) {
		return
	}
	if err != nil {
		m.logger.Error("failed to resync cart after change stream loss", "owner_id", ownerID, "error", err)
		return
	}
	fn(cart)
}

func (m *mongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "last_modified", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // abandoned carts
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// EnsureIndexes creates the cart collection indexes when repo is Mongo-backed.
func EnsureIndexes(ctx context.Context, repo CartRepository) error {
	if m, ok := repo.(*mongoCartRepository); ok {
		return m.CreateIndexes(ctx)
	}
	return nil
}
