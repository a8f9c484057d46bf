package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatlens/chatlens/internal/timeutil"
)

// filesProcessedPipeline counts uploaded files in both windows of
// a period.
func filesProcessedPipeline(p timeutil.Period) mongo.Pipeline {
	return mongo.Pipeline{
		PeriodFacet(p, nil, []bson.D{
			{{Key: "$count", Value: "total"}},
		}),
		{{Key: "$project", Value: bson.D{
			{Key: "currentFilesProcessed", Value: FirstOrDefault("current.total", 0)},
			{Key: "prevFilesProcessed", Value: FirstOrDefault("prev.total", 0)},
		}}},
	}
}

// FilesProcessed returns the processed file count for the period
// and its comparison window.
func (s *Store) FilesProcessed(
	ctx context.Context, p timeutil.Period,
) (FilesProcessedResult, error) {
	var rows []FilesProcessedResult
	if err := s.aggregate(ctx, CollFiles, filesProcessedPipeline(p), &rows); err != nil {
		return FilesProcessedResult{}, err
	}
	if len(rows) == 0 {
		return FilesProcessedResult{}, nil
	}
	return rows[0], nil
}
