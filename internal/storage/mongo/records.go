package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/fdg312/adreport/internal/query"
	"github.com/fdg312/adreport/internal/schema"
	"github.com/fdg312/adreport/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoStorage) InsertRecords(ctx context.Context, records []schema.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]any, len(records))
	for i := range records {
		docs[i] = records[i]
	}

	res, err := m.records.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return writtenCount(len(docs), err), fmt.Errorf("failed to insert records: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// writtenCount reports how many documents of an unordered insert landed
// despite err.
func writtenCount(total int, err error) int {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return 0
	}
	return max(total-len(bwe.WriteErrors), 0)
}

func (m *MongoStorage) DeleteGeneration(ctx context.Context, generation string) error {
	if _, err := m.records.DeleteMany(ctx, bson.M{schema.FieldReportID: generation}); err != nil {
		return fmt.Errorf("failed to delete generation %s: %w", generation, err)
	}
	return nil
}

func (m *MongoStorage) DeleteOtherGenerations(ctx context.Context, keep string) error {
	if _, err := m.records.DeleteMany(ctx, bson.M{schema.FieldReportID: bson.M{"$ne": keep}}); err != nil {
		return fmt.Errorf("failed to delete stale generations: %w", err)
	}
	return nil
}

type datasetState struct {
	ID         string `bson:"_id"`
	Generation string `bson:"report_id"`
}

func (m *MongoStorage) SetCurrentGeneration(ctx context.Context, generation string) error {
	_, err := m.state.UpdateOne(ctx,
		bson.M{"_id": currentStateID},
		bson.M{"$set": bson.M{schema.FieldReportID: generation}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set current generation: %w", err)
	}
	return nil
}

func (m *MongoStorage) CurrentGeneration(ctx context.Context) (string, error) {
	var st datasetState
	err := m.state.FindOne(ctx, bson.M{"_id": currentStateID}).Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current generation: %w", err)
	}
	return st.Generation, nil
}

func (m *MongoStorage) Aggregate(ctx context.Context, plan *query.Plan, generation string) ([]query.Row, int, error) {
	cursor, err := m.records.Aggregate(ctx, BuildPipeline(plan, generation))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to run aggregation: %w", err)
	}
	defer cursor.Close(ctx)

	var res facetResult
	if cursor.Next(ctx) {
		if err := cursor.Decode(&res); err != nil {
			return nil, 0, fmt.Errorf("failed to decode aggregation: %w", err)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read aggregation: %w", err)
	}

	return decodeFacet(plan, res)
}

func (m *MongoStorage) CountRecords(ctx context.Context, generation string) (int64, error) {
	filter := bson.M{}
	if generation != "" {
		filter[schema.FieldReportID] = generation
	}

	n, err := m.records.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (m *MongoStorage) Generations(ctx context.Context) ([]string, error) {
	values, err := m.records.Distinct(ctx, schema.FieldReportID, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// SummaryPipeline totals the dashboard metrics of one generation, or of the
// whole collection when generation is empty.
func SummaryPipeline(generation string) []bson.M {
	match := bson.M{}
	if generation != "" {
		match[schema.FieldReportID] = generation
	}
	return []bson.M{
		{"$match": match},
		{"$group": bson.M{
			"_id":                     nil,
			schema.FieldTotalRequests: bson.M{"$sum": "$" + schema.FieldTotalRequests},
			schema.FieldImpressions:   bson.M{"$sum": "$" + schema.FieldImpressions},
			schema.FieldClicks:        bson.M{"$sum": "$" + schema.FieldClicks},
			schema.FieldPayout:        bson.M{"$sum": "$" + schema.FieldPayout},
		}},
	}
}

func (m *MongoStorage) Summarize(ctx context.Context, generation string) (*storage.Summary, error) {
	cursor, err := m.records.Aggregate(ctx, SummaryPipeline(generation))
	if err != nil {
		return nil, fmt.Errorf("failed to run summary: %w", err)
	}
	defer cursor.Close(ctx)

	var sum storage.Summary
	if cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
		requests, _ := toFloat(doc[schema.FieldTotalRequests])
		impressions, _ := toFloat(doc[schema.FieldImpressions])
		clicks, _ := toFloat(doc[schema.FieldClicks])
		payout, _ := toFloat(doc[schema.FieldPayout])

		sum.TotalRequests = int64(requests)
		sum.Impressions = int64(impressions)
		sum.Clicks = int64(clicks)
		sum.Payout = payout
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	sum.AverageECPM = query.Ratio(sum.Payout, float64(sum.Impressions), 1000)
	return &sum, nil
}
