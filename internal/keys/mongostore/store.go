// Package mongostore persists key records as documents in a MongoDB
// collection with a unique index on "key".
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EternisAI/keygate/internal/keys"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

type document struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Key                string             `bson:"key"`
	Description        string             `bson:"description"`
	Status             string             `bson:"status"`
	CreatedAt          time.Time          `bson:"createdAt"`
	ActivatedAt        *time.Time         `bson:"activatedAt"`
	ExpiresAt          time.Time          `bson:"expiresAt"`
	UpdatedAt          *time.Time         `bson:"updatedAt,omitempty"`
	TotalDuration      int64              `bson:"totalDuration"`
	UsageCount         int64              `bson:"usageCount"`
	LastUsed           *time.Time         `bson:"lastUsed"`
	LastOnline         *time.Time         `bson:"lastOnline,omitempty"`
	LastOnlineDeviceID string             `bson:"lastOnlineDeviceId,omitempty"`
	LastExtended       *time.Time         `bson:"lastExtended,omitempty"`
	CreatedBy          string             `bson:"createdBy,omitempty"`
	AutoRegistered     bool               `bson:"autoRegistered,omitempty"`
	KeyType            string             `bson:"keyType,omitempty"`
	Identifier         string             `bson:"identifier,omitempty"`
	ExtensionHistory   []keys.Extension   `bson:"extensionHistory,omitempty"`
}

type Store struct {
	coll *mongo.Collection
}

func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

var _ keys.Repository = (*Store)(nil)

// EnsureIndexes creates the unique key index and the query indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create key indexes: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec *keys.KeyRecord) error {
	if _, err := s.coll.InsertOne(ctx, toDocument(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return keys.ErrConflict
		}
		return fmt.Errorf("failed to insert key: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*keys.KeyRecord, error) {
	var doc document
	if err := s.coll.FindOne(ctx, bson.M{"key": key}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.record(), nil
}

func (s *Store) RecordUsage(ctx context.Context, key string, now time.Time) (*keys.KeyRecord, error) {
	filter := bson.M{
		"key":       key,
		"status":    string(keys.StatusActive),
		"expiresAt": bson.M{"$gt": now},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"usageCount":  bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$usageCount", 0}}, 1}},
			"lastUsed":    now,
			"activatedAt": bson.M{"$ifNull": bson.A{"$activatedAt", now}},
		}}},
	}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Store) MarkExpired(ctx context.Context, key string, now time.Time) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"key": key, "status": string(keys.StatusActive)},
		bson.M{"$set": bson.M{"status": string(keys.StatusExpired), "updatedAt": now}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark key expired: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// Extend runs as one pipeline update. Inside a single $set stage every
// "$field" reference reads the pre-update document.
func (s *Store) Extend(ctx context.Context, key string, by time.Duration, ext keys.Extension) (*keys.KeyRecord, error) {
	entry := bson.M{
		"extendedAt":        ext.ExtendedAt,
		"duration":          ext.Duration,
		"unit":              bson.M{"$literal": string(ext.Unit)},
		"previousExpiresAt": "$expiresAt",
	}
	if ext.ExtendedBy != "" {
		entry["extendedBy"] = bson.M{"$literal": ext.ExtendedBy}
	}

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"expiresAt":     bson.M{"$add": bson.A{bson.M{"$max": bson.A{"$expiresAt", ext.ExtendedAt}}, by.Milliseconds()}},
			"totalDuration": bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$totalDuration", 0}}, by.Milliseconds()}},
			"status":        string(keys.StatusActive),
			"updatedAt":     ext.ExtendedAt,
			"lastExtended":  ext.ExtendedAt,
			"extensionHistory": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$extensionHistory", bson.A{}}},
				bson.A{entry},
			}},
		}}},
	}
	return s.findOneAndUpdate(ctx, bson.M{"key": key}, update)
}

func (s *Store) Update(ctx context.Context, key string, upd keys.RecordUpdate) (*keys.KeyRecord, error) {
	set := bson.M{"updatedAt": upd.UpdatedAt}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Status != nil {
		set["status"] = string(*upd.Status)
	}
	return s.findOneAndUpdate(ctx, bson.M{"key": key}, bson.M{"$set": set})
}

func (s *Store) Touch(ctx context.Context, key, deviceID string, now time.Time) error {
	set := bson.M{"lastOnline": now}
	if deviceID != "" {
		set["lastOnlineDeviceId"] = deviceID
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"key": key}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	if res.MatchedCount == 0 {
		return keys.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter keys.ListFilter) ([]keys.KeyRecord, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	recs, err := s.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return recs, total, nil
}

func (s *Store) ListOnline(ctx context.Context, since time.Time) ([]keys.KeyRecord, error) {
	query := bson.M{
		"status":     string(keys.StatusActive),
		"lastOnline": bson.M{"$gte": since},
	}
	return s.find(ctx, query, options.Find().SetSort(bson.D{{Key: "lastOnline", Value: -1}}))
}

func (s *Store) Stats(ctx context.Context, now time.Time) (keys.Stats, error) {
	var st keys.Stats
	counts := []struct {
		dst    *int64
		filter bson.M
	}{
		{&st.Total, bson.M{}},
		{&st.Active, bson.M{"status": string(keys.StatusActive), "expiresAt": bson.M{"$gt": now}}},
		{&st.Expired, bson.M{"$or": bson.A{
			bson.M{"status": string(keys.StatusExpired)},
			bson.M{"expiresAt": bson.M{"$lte": now}},
		}}},
		{&st.Used, bson.M{"usageCount": bson.M{"$gt": 0}}},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range counts {
		g.Go(func() error {
			n, err := s.coll.CountDocuments(gctx, c.filter)
			if err != nil {
				return err
			}
			*c.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return keys.Stats{}, fmt.Errorf("failed to compute key stats: %w", err)
	}
	return st, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"status": string(keys.StatusActive), "expiresAt": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"status": string(keys.StatusExpired), "updatedAt": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire keys: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) DeleteExpiredBefore(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"status":    string(keys.StatusExpired),
		"expiresAt": bson.M{"$lte": threshold},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired keys: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.coll.Database().Client().Disconnect(ctx)
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter any, update any) (*keys.KeyRecord, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc document
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.record(), nil
}

func (s *Store) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]keys.KeyRecord, error) {
	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer cur.Close(ctx)

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode keys: %w", err)
	}

	result := make([]keys.KeyRecord, len(docs))
	for i := range docs {
		result[i] = *docs[i].record()
	}
	return result, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return keys.ErrNotFound
	}
	return fmt.Errorf("failed to query key: %w", err)
}

func toDocument(rec *keys.KeyRecord) *document {
	return &document{
		Key:                rec.Key,
		Description:        rec.Description,
		Status:             string(rec.Status),
		CreatedAt:          rec.CreatedAt,
		ActivatedAt:        rec.ActivatedAt,
		ExpiresAt:          rec.ExpiresAt,
		UpdatedAt:          rec.UpdatedAt,
		TotalDuration:      rec.TotalDuration,
		UsageCount:         rec.UsageCount,
		LastUsed:           rec.LastUsed,
		LastOnline:         rec.LastOnline,
		LastOnlineDeviceID: rec.LastOnlineDeviceID,
		LastExtended:       rec.LastExtended,
		CreatedBy:          rec.CreatedBy,
		AutoRegistered:     rec.AutoRegistered,
		KeyType:            rec.KeyType,
		Identifier:         rec.Identifier,
		ExtensionHistory:   rec.ExtensionHistory,
	}
}

func (d *document) record() *keys.KeyRecord {
	return &keys.KeyRecord{
		Key:                d.Key,
		Description:        d.Description,
		Status:             keys.Status(d.Status),
		CreatedAt:          d.CreatedAt,
		ActivatedAt:        d.ActivatedAt,
		ExpiresAt:          d.ExpiresAt,
		UpdatedAt:          d.UpdatedAt,
		TotalDuration:      d.TotalDuration,
		UsageCount:         d.UsageCount,
		LastUsed:           d.LastUsed,
		LastOnline:         d.LastOnline,
		LastOnlineDeviceID: d.LastOnlineDeviceID,
		LastExtended:       d.LastExtended,
		CreatedBy:          d.CreatedBy,
		AutoRegistered:     d.AutoRegistered,
		KeyType:            d.KeyType,
		Identifier:         d.Identifier,
		ExtensionHistory:   d.ExtensionHistory,
	}
}
