package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/mural-go-api/internal/models"
)

// ActivityCollection is the collection holding board activities.
const ActivityCollection = "activities"

type activityDocument struct {
	ID          string             `bson:"_id"`
	Title       string             `bson:"title"`
	Subject     string             `bson:"subject"`
	Description string             `bson:"description"`
	Date        string             `bson:"date"`
	Type        string             `bson:"type"`
	CreatedAt   time.Time          `bson:"createdAt"`
	Attachment  *models.Attachment `bson:"attachment,omitempty"`
}

func (d activityDocument) toModel() (models.Activity, error) {
	date, err := models.ParseDate(d.Date)
	if err != nil {
		return models.Activity{}, err
	}
	return models.Activity{
		ID:          d.ID,
		Title:       d.Title,
		Subject:     d.Subject,
		Description: d.Description,
		Date:        date,
		Type:        models.ActivityType(d.Type),
		CreatedAt:   d.CreatedAt.UTC(),
		Attachment:  d.Attachment,
	}, nil
}

func fieldsDocument(fields models.ActivityFields) bson.M {
	return bson.M{
		"title":       fields.Title,
		"subject":     fields.Subject,
		"description": fields.Description,
		"date":        fields.Date.String(),
		"type":        string(fields.Type),
	}
}

type mongoActivityStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoActivityStore stores activities as documents keyed by id.
func NewMongoActivityStore(db *mongo.Database) ActivityStore {
	return &mongoActivityStore{collection: db.Collection(ActivityCollection), now: time.Now}
}

// EnsureActivityIndexes creates the sort index used by List.
func EnsureActivityIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(ActivityCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return unavailable("create activity indexes", err)
	}
	return nil
}

func (s *mongoActivityStore) List(ctx context.Context) ([]models.Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, unavailable("list activities", err)
	}
	defer cursor.Close(ctx)

	var docs []activityDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, unavailable("decode activities", err)
	}

	items := make([]models.Activity, 0, len(docs))
	for _, doc := range docs {
		activity, err := doc.toModel()
		if err != nil {
			return nil, unavailable("decode activity", err)
		}
		items = append(items, activity)
	}
	return items, nil
}

func (s *mongoActivityStore) Get(ctx context.Context, id string) (models.Activity, error) {
	var doc activityDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Activity{}, ErrActivityNotFound
		}
		return models.Activity{}, unavailable("get activity", err)
	}
	activity, err := doc.toModel()
	if err != nil {
		return models.Activity{}, unavailable("decode activity", err)
	}
	return activity, nil
}

func (s *mongoActivityStore) Create(ctx context.Context, fields models.ActivityFields, attachment *models.Attachment) (models.Activity, error) {
	doc := activityDocument{
		ID:          uuid.NewString(),
		Title:       fields.Title,
		Subject:     fields.Subject,
		Description: fields.Description,
		Date:        fields.Date.String(),
		Type:        string(fields.Type),
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
		Attachment:  attachment,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return models.Activity{}, unavailable("create activity", err)
	}
	activity, err := doc.toModel()
	if err != nil {
		return models.Activity{}, unavailable("decode activity", err)
	}
	return activity, nil
}

func (s *mongoActivityStore) Update(ctx context.Context, id string, fields models.ActivityFields, change AttachmentChange) (models.Activity, error) {
	set := fieldsDocument(fields)
	update := bson.M{"$set": set}
	switch change.Kind {
	case AttachmentRemove:
		update["$unset"] = bson.M{"attachment": ""}
	case AttachmentReplace:
		set["attachment"] = change.Attachment
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc activityDocument
	if err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Activity{}, ErrActivityNotFound
		}
		return models.Activity{}, unavailable("update activity", err)
	}
	activity, err := doc.toModel()
	if err != nil {
		return models.Activity{}, unavailable("decode activity", err)
	}
	return activity, nil
}

func (s *mongoActivityStore) Remove(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return unavailable("remove activity", err)
	}
	return nil
}
