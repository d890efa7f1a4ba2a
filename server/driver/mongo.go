// SPDX-License-Identifier: MPL-2.0

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"facet/server/pipeline"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Query syntax: `<collection>.find(<filter json>)` or
// `<collection>.aggregate(<pipeline json>)`. The argument defaults to an empty
// filter when omitted.
var mongoQueryRe = regexp.MustCompile(`(?s)^\s*(\w+)\.(find|aggregate)\((.*)\)\s*$`)

type mongoDriver struct {
	client   *mongo.Client
	database string
}

func openMongo(ctx context.Context, dsn string, database string) (Driver, error) {
	if database == "" {
		return nil, fmt.Errorf("mongodb source needs a database name")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongodb: %w", err)
	}
	return &mongoDriver{client: client, database: database}, nil
}

func (d *mongoDriver) Query(ctx context.Context, query string) (pipeline.QueryResult, error) {
	result := pipeline.QueryResult{Columns: []string{}, Rows: [][]any{}}
	m := mongoQueryRe.FindStringSubmatch(query)
	if m == nil {
		return result, fmt.Errorf("invalid mongodb query, expected collection.find(...) or collection.aggregate(...)")
	}
	collection := d.client.Database(d.database).Collection(m[1])
	arg := strings.TrimSpace(m[3])

	var cursor *mongo.Cursor
	var err error
	switch m[2] {
	case "find":
		filter := bson.M{}
		if arg != "" {
			if err := json.Unmarshal([]byte(arg), &filter); err != nil {
				return result, fmt.Errorf("invalid find filter: %w", err)
			}
		}
		cursor, err = collection.Find(ctx, filter, options.Find().SetLimit(queryMaxRows))
	case "aggregate":
		stages := []bson.M{}
		if arg != "" {
			if err := json.Unmarshal([]byte(arg), &stages); err != nil {
				return result, fmt.Errorf("invalid aggregation pipeline: %w", err)
			}
		}
		cursor, err = collection.Aggregate(ctx, stages)
	}
	if err != nil {
		return result, fmt.Errorf("error querying mongodb: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []map[string]any
	if err := cursor.All(ctx, &docs); err != nil {
		return result, err
	}
	if len(docs) > queryMaxRows {
		docs = docs[:queryMaxRows]
	}
	for _, doc := range docs {
		for k, v := range doc {
			doc[k] = formatCell(v)
		}
	}
	// Documents are schemaless; the first document decides the columns, same
	// as script output.
	return pipeline.ToQueryResult(docs, nil), nil
}

func (d *mongoDriver) Close() error {
	return d.client.Disconnect(context.Background())
}
