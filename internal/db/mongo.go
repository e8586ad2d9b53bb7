package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

// Mongo is a store.Store keeping each conversation as one document with an
// embedded messages array.
type Mongo struct {
	Client        *mongo.Client
	Database      *mongo.Database
	Conversations *mongo.Collection

	opts store.Options
}

var _ store.Store = (*Mongo)(nil)

func NewMongo(ctx context.Context, cfg utils.MongoConfig, opts ...store.Option) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: uri is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	db := client.Database(cfg.Database)
	return &Mongo{
		Client:        client,
		Database:      db,
		Conversations: db.Collection("conversations"),
		opts:          store.ApplyOptions(opts...),
	}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.Client.Disconnect(ctx)
}

func (m *Mongo) EnsureCollections(ctx context.Context) error {
	if m == nil || m.Database == nil {
		return fmt.Errorf("mongo: database not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.Conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "last_activity", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure conversation index: %w", err)
	}

	return nil
}

func (m *Mongo) Create(ctx context.Context) (string, error) {
	now := m.opts.Now()

	for {
		conv := models.Conversation{
			ID:           m.opts.NewID(),
			Messages:     []models.Message{},
			CreatedAt:    now,
			LastActivity: now,
		}

		_, err := m.Conversations.InsertOne(ctx, conv)
		if err == nil {
			return conv.ID, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("mongo: create conversation: %w", err)
		}
	}
}

func (m *Mongo) Get(ctx context.Context, id string) (models.Conversation, error) {
	var conv models.Conversation
	if err := m.Conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Conversation{}, store.ErrNotFound
		}
		return models.Conversation{}, fmt.Errorf("mongo: find conversation: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return conv, nil
}

func (m *Mongo) AppendUserMessage(ctx context.Context, id, text string) (models.Conversation, error) {
	content, err := store.ValidateUserMessage(text)
	if err != nil {
		return models.Conversation{}, err
	}

	now := m.opts.Now()
	update := bson.M{
		"$push":        bson.M{"messages": models.Message{Role: models.RoleUser, Content: content, Timestamp: now}},
		"$set":         bson.M{"last_activity": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv models.Conversation
	if err := m.Conversations.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&conv); err != nil {
		return models.Conversation{}, fmt.Errorf("mongo: append user message: %w", err)
	}
	return conv, nil
}

func (m *Mongo) AppendAssistantMessage(ctx context.Context, id, text string) (models.Message, error) {
	now := m.opts.Now()
	msg := models.Message{Role: models.RoleAssistant, Content: text, Timestamp: now}

	res, err := m.Conversations.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"last_activity": now},
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("mongo: append assistant message: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.Message{}, store.ErrNotFound
	}
	return msg, nil
}

func (m *Mongo) ContextWindow(ctx context.Context, id string, maxMessages int) ([]models.ContextMessage, error) {
	if maxMessages <= 0 {
		maxMessages = store.DefaultContextWindow
	}

	opts := options.FindOne().SetProjection(bson.M{"messages": bson.M{"$slice": -maxMessages}})

	var conv models.Conversation
	if err := m.Conversations.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: context window: %w", err)
	}
	return store.Window(conv.Messages, maxMessages), nil
}

func (m *Mongo) Delete(ctx context.Context, id string) error {
	res, err := m.Conversations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo: delete conversation: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (m *Mongo) SweepExpired(ctx context.Context, maxAge time.Duration) ([]string, error) {
	filter := bson.M{"last_activity": bson.M{"$lt": m.opts.Now().Add(-maxAge)}}

	cursor, err := m.Conversations.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("mongo: find expired: %w", err)
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode expired: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}

	// Re-check the cutoff so a conversation touched since the find survives.
	filter["_id"] = bson.M{"$in": ids}
	if _, err := m.Conversations.DeleteMany(ctx, filter); err != nil {
		return nil, fmt.Errorf("mongo: delete expired: %w", err)
	}
	return ids, nil
}

func (m *Mongo) List(ctx context.Context) ([]models.ConversationSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{
			"created_at":    1,
			"last_activity": 1,
			"message_count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$messages", bson.A{}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_activity", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cursor, err := m.Conversations.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo: list conversations: %w", err)
	}

	var docs []struct {
		ID           string    `bson:"_id"`
		MessageCount int       `bson:"message_count"`
		CreatedAt    time.Time `bson:"created_at"`
		LastActivity time.Time `bson:"last_activity"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode summaries: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, models.ConversationSummary{
			ID:           doc.ID,
			MessageCount: doc.MessageCount,
			CreatedAt:    doc.CreatedAt,
			LastActivity: doc.LastActivity,
		})
	}
	return summaries, nil
}
