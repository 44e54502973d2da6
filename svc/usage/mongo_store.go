package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/entitle/svc/plan"
)

// DefaultMongoCollection is the collection used when none is configured.
const DefaultMongoCollection = "usage_records"

// mongoRecord is the document layout: one document per user and day.
type mongoRecord struct {
	ID                  string    `bson:"_id"`
	UserID              string    `bson:"user_id"`
	Day                 time.Time `bson:"day"`
	ContentGenerations  []Event   `bson:"contentGenerations,omitempty"`
	AudioTranscriptions []Event   `bson:"audioTranscriptions,omitempty"`
	ImageGenerations    []Event   `bson:"imageGenerations,omitempty"`
	APICalls            []Event   `bson:"apiCalls,omitempty"`
	TotalTokensUsed     int64     `bson:"totalTokensUsed"`
	TotalStorageUsed    int64     `bson:"totalStorageUsed"`
}

// MongoStore keeps usage records in a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultMongoCollection
	}
	return &MongoStore{coll: db.Collection(collection)}
}

// EnsureIndexes creates the (user_id, day) index used by range queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "day", Value: 1}},
	})
	if err != nil {
		return errors.Join(ErrStoreOperation, err)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, userID string, day time.Time, metric plan.Metric, e Event) error {
	if !metric.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	update := bson.D{
		{Key: "$setOnInsert", Value: bson.D{{Key: "user_id", Value: userID}, {Key: "day", Value: day}}},
		{Key: "$push", Value: bson.D{{Key: string(metric), Value: e}}},
		{Key: "$inc", Value: bson.D{
			{Key: "totalTokensUsed", Value: e.Tokens},
			{Key: "totalStorageUsed", Value: e.Storage},
		}},
	}

	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: recordID(userID, day)}},
		update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return errors.Join(ErrStoreOperation, err)
	}
	return nil
}

func (s *MongoStore) Sum(ctx context.Context, userID string, metric plan.Metric, from, to time.Time) (int64, error) {
	if !metric.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	field := "$" + string(metric)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: rangeFilter(userID, from, to)}},
		{{Key: "$unwind", Value: field}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: field + ".amount"}}},
		}}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, errors.Join(ErrStoreOperation, err)
	}
	defer cur.Close(ctx)

	var result []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &result); err != nil {
		return 0, errors.Join(ErrStoreOperation, err)
	}
	if len(result) == 0 {
		return 0, nil
	}
	return result[0].Total, nil
}

func (s *MongoStore) Records(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	cur, err := s.coll.Find(ctx, rangeFilter(userID, from, to),
		options.Find().SetSort(bson.D{{Key: "day", Value: 1}}))
	if err != nil {
		return nil, errors.Join(ErrStoreOperation, err)
	}
	defer cur.Close(ctx)

	var docs []mongoRecord
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Join(ErrStoreOperation, err)
	}

	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, Record{
			UserID:              d.UserID,
			Date:                d.Day.UTC(),
			ContentGenerations:  d.ContentGenerations,
			AudioTranscriptions: d.AudioTranscriptions,
			ImageGenerations:    d.ImageGenerations,
			APICalls:            d.APICalls,
			TotalTokensUsed:     d.TotalTokensUsed,
			TotalStorageUsed:    d.TotalStorageUsed,
		})
	}
	return out, nil
}

func rangeFilter(userID string, from, to time.Time) bson.D {
	return bson.D{
		{Key: "user_id", Value: userID},
		{Key: "day", Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lt", Value: to}}},
	}
}

func recordID(userID string, day time.Time) string {
	return userID + "|" + day.Format(time.DateOnly)
}
