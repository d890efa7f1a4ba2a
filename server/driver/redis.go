// SPDX-License-Identifier: MPL-2.0

package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"facet/server/pipeline"

	"github.com/redis/go-redis/v9"
)

// redisDriver treats the query text as a single command line, e.g.
// `GET total`, `HGETALL user:1`, `LRANGE recent 0 -1`, `KEYS sess:*`.
// Results are shaped into key/value or value columns depending on the reply.
type redisDriver struct {
	client *redis.Client
}

func openRedis(ctx context.Context, dsn string) (Driver, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	return &redisDriver{client: client}, nil
}

func (d *redisDriver) Query(ctx context.Context, query string) (pipeline.QueryResult, error) {
	result := pipeline.QueryResult{Columns: []string{}, Rows: [][]any{}}
	parts := strings.Fields(strings.TrimSpace(query))
	if len(parts) == 0 {
		return result, fmt.Errorf("empty redis command")
	}
	args := make([]any, len(parts))
	for i, p := range parts {
		args[i] = p
	}
	reply, err := d.client.Do(ctx, args...).Result()
	if err != nil {
		return result, fmt.Errorf("error running redis command: %w", err)
	}
	return shapeRedisReply(reply), nil
}

func shapeRedisReply(reply any) pipeline.QueryResult {
	switch reply := reply.(type) {
	case map[any]any:
		// HGETALL and friends: one key/value row per field, sorted for a
		// stable result.
		rows := make([][]any, 0, len(reply))
		for k, v := range reply {
			rows = append(rows, []any{fmt.Sprintf("%v", k), v})
		}
		sort.Slice(rows, func(i, j int) bool {
			return rows[i][0].(string) < rows[j][0].(string)
		})
		return pipeline.QueryResult{Columns: []string{"key", "value"}, Rows: rows}
	case map[string]any:
		rows := make([][]any, 0, len(reply))
		for k, v := range reply {
			rows = append(rows, []any{k, v})
		}
		sort.Slice(rows, func(i, j int) bool {
			return rows[i][0].(string) < rows[j][0].(string)
		})
		return pipeline.QueryResult{Columns: []string{"key", "value"}, Rows: rows}
	case []any:
		rows := make([][]any, 0, len(reply))
		for _, v := range reply {
			rows = append(rows, []any{v})
		}
		return pipeline.QueryResult{Columns: []string{"value"}, Rows: rows}
	case nil:
		return pipeline.QueryResult{Columns: []string{"value"}, Rows: [][]any{}}
	default:
		return pipeline.QueryResult{Columns: []string{"value"}, Rows: [][]any{{reply}}}
	}
}

func (d *redisDriver) Close() error {
	return d.client.Close()
}
