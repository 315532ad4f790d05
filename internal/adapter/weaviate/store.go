package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"scholaria/backend/internal/index"
	"scholaria/backend/internal/retrieval"
)

const className = "DocumentChunk"

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) AddBatch(ctx context.Context, items []index.Item) error {
	objects := make([]*models.Object, len(items))
	for i, it := range items {
		props := map[string]interface{}{"content": it.Content}
		for k, v := range it.Metadata {
			props[k] = v
		}
		objects[i] = &models.Object{
			Class:      className,
			ID:         strfmt.UUID(it.ID),
			Properties: props,
			Vector:     it.Vector,
		}
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	for _, obj := range res {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch object %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}

func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, topK int, threshold float64, filterFields map[string]interface{}) ([]retrieval.VectorHit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithCertainty(float32(threshold))

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "title"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(fields...)

	if where := buildWhere(filterFields); where != nil {
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var hits []retrieval.VectorHit
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return hits, nil
	}
	chunks, ok := data[className].([]interface{})
	if !ok {
		return hits, nil
	}
	for _, c := range chunks {
		props, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		hit := retrieval.VectorHit{}
		if content, ok := props["content"].(string); ok {
			hit.Content = content
		}
		if docID, ok := props["documentId"].(string); ok {
			hit.DocumentID = docID
		}
		if title, ok := props["title"].(string); ok {
			hit.Title = title
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			hit.ChunkIndex = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				hit.ChunkID = id
			}
			// Certainty arrives as float64 normally, as string in some
			// server versions.
			if certainty, ok := additional["certainty"].(float64); ok {
				hit.Score = certainty
			} else if str, ok := additional["certainty"].(string); ok {
				var f float64
				fmt.Sscanf(str, "%f", &f)
				hit.Score = f
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func buildWhere(filterFields map[string]interface{}) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	for path, value := range filterFields {
		switch v := value.(type) {
		case string:
			operands = append(operands, filters.Where().
				WithPath([]string{path}).
				WithOperator(filters.Equal).
				WithValueString(v))
		case []string:
			if len(v) == 0 {
				continue
			}
			operands = append(operands, filters.Where().
				WithPath([]string{path}).
				WithOperator(filters.ContainsAny).
				WithValueString(v...))
		}
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}
