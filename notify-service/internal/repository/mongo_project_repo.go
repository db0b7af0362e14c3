package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/log"
)

// MongoConfig contains configuration for the MongoDB connection.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoProjectRepository implements ProjectRepository using MongoDB.
type MongoProjectRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoProjectRepository connects, pings and ensures the task_id and
// state indexes.
func NewMongoProjectRepository(ctx context.Context, cfg MongoConfig) (*MongoProjectRepository, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "projects"
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	r := &MongoProjectRepository{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}

	_, err = r.collection.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "task_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Ctx(ctx).Info().Str("database", cfg.Database).Str("collection", cfg.Collection).Msg("connected to MongoDB")
	return r, nil
}

func (r *MongoProjectRepository) Add(ctx context.Context, p *domain.Project) error {
	if _, err := r.collection.InsertOne(ctx, projectToDocument(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrProjectExists
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (r *MongoProjectRepository) Get(ctx context.Context, id string) (*domain.Project, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoProjectRepository) FindByTaskID(ctx context.Context, taskID string) (*domain.Project, error) {
	return r.findOne(ctx, bson.M{"task_id": taskID})
}

func (r *MongoProjectRepository) findOne(ctx context.Context, filter bson.M) (*domain.Project, error) {
	var doc projectDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return documentToProject(&doc), nil
}

// Update applies u with a single $set; each version is set by its dotted
// path so concurrent merges of different versions do not overwrite each other.
func (r *MongoProjectRepository) Update(ctx context.Context, id string, u domain.ProjectUpdate) (*domain.Project, error) {
	var doc projectDocument
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": updateFields(u, time.Now().UTC())},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return documentToProject(&doc), nil
}

func updateFields(u domain.ProjectUpdate, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if u.State != nil {
		set["state"] = string(*u.State)
	}
	for k, v := range u.Versions {
		set["versions."+k] = v
	}
	if u.Progress != nil {
		set["progress"] = progressDocument{Done: u.Progress.Done, Total: u.Progress.Total}
	}
	if u.TaskID != nil {
		set["task_id"] = *u.TaskID
	}
	if u.Error != nil {
		set["error"] = *u.Error
	}
	return set
}

func (r *MongoProjectRepository) List(ctx context.Context, filter domain.ProjectFilter, skip, limit int) ([]*domain.Project, error) {
	q := bson.M{}
	if filter.State != "" {
		q["state"] = string(filter.State)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find projects: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []projectDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}

	projects := make([]*domain.Project, len(docs))
	for i := range docs {
		projects[i] = documentToProject(&docs[i])
	}
	return projects, nil
}

func (r *MongoProjectRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
