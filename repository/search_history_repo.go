package repository

import (
	"context"
	"log"

	"github.com/tieubaoca/memory-be/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type SearchHistoryRepo interface {
	Save(ctx context.Context, record types.SearchRecord) error
	List(ctx context.Context, limit, offset int) ([]types.SearchRecord, error)
}

type searchHistoryRepo struct {
	collection *mongo.Collection
}

func NewSearchHistoryRepo(db *mongo.Database) SearchHistoryRepo {
	// check if collection does not exist, create one
	collectionNames, err := db.ListCollectionNames(context.Background(), bson.D{})
	if err != nil {
		panic(err)
	}
	collectionExists := false
	for _, name := range collectionNames {
		if name == "search_history" {
			collectionExists = true
			break
		}
	}
	collection := db.Collection("search_history")
	if !collectionExists {
		indexes := []mongo.IndexModel{
			{
				Keys: bson.D{
					{Key: "created_at", Value: -1},
				},
			},
		}
		_, err = collection.Indexes().CreateMany(context.Background(), indexes)
		if err != nil {
			log.Printf("Error creating indexes: %v", err)
			return nil
		}
	}

	return &searchHistoryRepo{
		collection: collection,
	}
}

func (r *searchHistoryRepo) Save(ctx context.Context, record types.SearchRecord) error {
	_, err := r.collection.InsertOne(ctx, record)
	return err
}

func (r *searchHistoryRepo) List(ctx context.Context, limit, offset int) ([]types.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cursor, err := r.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []types.SearchRecord
	for cursor.Next(ctx) {
		var record types.SearchRecord
		if err := cursor.Decode(&record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
