package mongo

import (
	"fmt"
	"time"

	"github.com/fdg312/adreport/internal/query"
	"github.com/fdg312/adreport/internal/schema"
	"go.mongodb.org/mongo-driver/bson"
)

// BuildPipeline translates a plan into a single aggregation whose $facet
// stage returns the total group count and the requested page together.
func BuildPipeline(plan *query.Plan, generation string) []bson.M {
	pipeline := []bson.M{
		{"$match": matchStage(plan, generation)},
		{"$group": groupStage(plan)},
	}

	if len(plan.Derived) > 0 {
		derived := bson.M{}
		for _, d := range plan.Derived {
			num, den := "$"+d.Numerator, "$"+d.Denominator
			derived[d.Name] = bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{den, 0}},
				0,
				bson.M{"$multiply": bson.A{bson.M{"$divide": bson.A{num, den}}, d.Scale}},
			}}
		}
		pipeline = append(pipeline, bson.M{"$addFields": derived})
	}

	project := bson.M{"_id": 0}
	for _, d := range plan.Dimensions {
		project[d] = "$_id." + d
	}
	for _, m := range plan.Metrics {
		project[m] = 1
	}
	pipeline = append(pipeline, bson.M{"$project": project})

	if keys := plan.SortKeys(); len(keys) > 0 {
		sort := bson.D{}
		for _, k := range keys {
			sort = append(sort, bson.E{Key: k, Value: 1})
		}
		pipeline = append(pipeline, bson.M{"$sort": sort})
	}

	data := bson.A{bson.M{"$skip": plan.Offset}}
	if plan.Paginated {
		data = append(data, bson.M{"$limit": plan.Limit})
	}
	pipeline = append(pipeline, bson.M{"$facet": bson.M{
		"metadata": bson.A{bson.M{"$count": "total"}},
		"data":     data,
	}})

	return pipeline
}

func matchStage(plan *query.Plan, generation string) bson.M {
	match := bson.M{schema.FieldReportID: generation}

	if plan.DateFrom != nil {
		match[schema.FieldDate] = bson.M{"$gte": *plan.DateFrom, "$lte": *plan.DateTo}
	}

	for _, f := range plan.Filters {
		if f.Field == schema.FieldDate {
			// values were validated by query.Compile
			days := bson.A{}
			for _, v := range f.Values {
				d, _ := time.Parse(schema.DateLayout, v)
				days = append(days, d)
			}
			cond := bson.M{"$in": days}
			if existing, ok := match[schema.FieldDate].(bson.M); ok {
				existing["$in"] = days
				cond = existing
			}
			match[schema.FieldDate] = cond
			continue
		}
		values := bson.A{}
		for _, v := range f.Values {
			values = append(values, v)
		}
		match[f.Field] = bson.M{"$in": values}
	}

	return match
}

func groupStage(plan *query.Plan) bson.M {
	var id any
	if len(plan.Dimensions) > 0 {
		key := bson.M{}
		for _, d := range plan.Dimensions {
			if d == schema.FieldDate {
				key[d] = bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$" + d}}
				continue
			}
			key[d] = "$" + d
		}
		id = key
	}

	group := bson.M{"_id": id}
	for _, m := range plan.Sums {
		group[m] = bson.M{"$sum": "$" + m}
	}
	return group
}

type facetResult struct {
	Metadata []struct {
		Total int `bson:"total"`
	} `bson:"metadata"`
	Data []bson.M `bson:"data"`
}

// decodeFacet normalizes the facet document into query rows with the same
// value types the in-process evaluator produces.
func decodeFacet(plan *query.Plan, res facetResult) ([]query.Row, int, error) {
	total := 0
	if len(res.Metadata) > 0 {
		total = res.Metadata[0].Total
	}

	rows := make([]query.Row, 0, len(res.Data))
	for _, doc := range res.Data {
		row := make(query.Row, len(plan.Dimensions)+len(plan.Metrics))
		for _, d := range plan.Dimensions {
			s, _ := doc[d].(string)
			row[d] = s
		}
		for _, m := range plan.Metrics {
			v, err := toFloat(doc[m])
			if err != nil {
				return nil, 0, fmt.Errorf("metric %s: %w", m, err)
			}
			if schema.IsBase(m) {
				row[m] = query.NormalizeMetric(m, v)
				continue
			}
			row[m] = v
		}
		rows = append(rows, row)
	}

	return rows, total, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
