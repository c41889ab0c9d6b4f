package complaint

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const complaintCollection = "complaints"

// complaintDoc wraps the complaint body with the fields Mongo keys on.
type complaintDoc struct {
	ID        string     `bson:"_id"`
	Version   int64      `bson:"version"`
	Complaint *Complaint `bson:"doc"`
}

type complaintRepoMongo struct {
	coll *mongo.Collection
}

func NewComplaintRepoMongo(database *mongo.Database) ComplaintRepository {
	return &complaintRepoMongo{coll: database.Collection(complaintCollection)}
}

// EnsureComplaintIndexes creates the indexes List relies on.
func EnsureComplaintIndexes(ctx context.Context, database *mongo.Database) ([]string, error) {
	return database.Collection(complaintCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "doc.status", Value: 1}}},
		{Keys: bson.D{{Key: "doc.complaintType", Value: 1}, {Key: "doc.createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "doc.subjectId", Value: 1}}},
	})
}

func (r *complaintRepoMongo) Create(ctx context.Context, c *Complaint) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Version = 1
	_, err := r.coll.InsertOne(ctx, complaintDoc{ID: c.ID.String(), Version: c.Version, Complaint: c})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("complaint %s already exists: %w", c.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert complaint: %w", err)
	}
	return nil
}

func (r *complaintRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Complaint, error) {
	var d complaintDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("complaint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find complaint: %w", err)
	}
	return d.unwrap()
}

func (r *complaintRepoMongo) Save(ctx context.Context, c *Complaint) error {
	filter := bson.M{"_id": c.ID.String(), "version": c.Version}
	res, err := r.coll.ReplaceOne(ctx, filter, complaintDoc{ID: c.ID.String(), Version: c.Version + 1, Complaint: c})
	if err != nil {
		return fmt.Errorf("replace complaint: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, c)
	}
	c.Version++
	return nil
}

func (r *complaintRepoMongo) UpdateDepartment(ctx context.Context, c *Complaint, dept DepartmentKey) error {
	filter := bson.M{"_id": c.ID.String(), "version": c.Version}
	update := bson.M{
		"$set": bson.M{
			"doc.departments." + string(dept): c.Departments[dept],
			"doc.status":                      c.Status,
			"doc.updatedAt":                   c.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update department %s: %w", dept, err)
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, c)
	}
	c.Version++
	return nil
}

func (r *complaintRepoMongo) missOrConflict(ctx context.Context, c *Complaint) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": c.ID.String()})
	if err != nil {
		return fmt.Errorf("check complaint %s: %w", c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("complaint %s: %w", c.ID, ErrNotFound)
	}
	return fmt.Errorf("complaint %s at version %d: %w", c.ID, c.Version, ErrConflict)
}

func (r *complaintRepoMongo) Find(ctx context.Context, f Filter, limit, offset int) ([]*Complaint, int, error) {
	filter := mongoFilter(f)

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count complaints: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "doc.createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list complaints: %w", err)
	}
	var docs []complaintDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode complaints: %w", err)
	}

	items := make([]*Complaint, 0, len(docs))
	for i := range docs {
		c, err := docs[i].unwrap()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, int(total), nil
}

func mongoFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.Type != "" {
		filter["doc.complaintType"] = f.Type
	}
	if f.Status != "" {
		filter["doc.status"] = f.Status
	}
	if f.SubjectID != "" {
		filter["doc.subjectId"] = f.SubjectID
	}
	if f.Department != "" {
		filter["doc.departments."+string(f.Department)] = bson.M{"$exists": true}
	}
	return filter
}

func (d *complaintDoc) unwrap() (*Complaint, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("complaint id %q: %w", d.ID, err)
	}
	c := d.Complaint
	if c == nil {
		c = &Complaint{}
	}
	if c.Departments == nil {
		c.Departments = make(map[DepartmentKey]*DepartmentConcern)
	}
	c.ID = id
	c.Version = d.Version
	return c, nil
}
