package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "dialog-manager/internal/common/errors"
)

// Example is one labelled utterance returned by the retrieval backend.
type Example struct {
	Text         string  `json:"text"`
	Intent       string  `json:"intent"`
	ParentIntent string  `json:"parent_intent"`
	Score        float64 `json:"score"`
}

// Retriever returns examples similar to query, ranked best first. parent
// restricts results to intents below it; empty means no restriction.
type Retriever interface {
	Retrieve(ctx context.Context, query, parent string, topK int) ([]Example, error)
}

// ElasticsearchRetriever searches an index of labelled intent examples.
// Documents carry text, intent and parent_intent fields.
type ElasticsearchRetriever struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchRetriever(client *elasticsearch.Client, index string) *ElasticsearchRetriever {
	return &ElasticsearchRetriever{client: client, index: index}
}

func (r *ElasticsearchRetriever) Retrieve(ctx context.Context, query, parent string, topK int) ([]Example, error) {
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{"match": map[string]interface{}{"text": query}},
		},
	}
	if parent != "" {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"prefix": map[string]interface{}{"intent": parent + "."}},
		}
	}
	queryBody := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  topK,
	}

	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, apperrors.NewRetrievalFailedError(err)
	}
	req := esapi.SearchRequest{
		Index: []string{r.index},
		Body:  strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewRetrievalTimeoutError(err)
		}
		return nil, apperrors.NewRetrievalFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewRetrievalFailedError(fmt.Errorf("search failed: %s", res.String()))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					Text         string `json:"text"`
					Intent       string `json:"intent"`
					ParentIntent string `json:"parent_intent"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewRetrievalFailedError(fmt.Errorf("decode search response: %w", err))
	}

	out := make([]Example, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if hit.Source.Intent == "" {
			continue
		}
		out = append(out, Example{
			Text:         hit.Source.Text,
			Intent:       hit.Source.Intent,
			ParentIntent: hit.Source.ParentIntent,
			Score:        hit.Score,
		})
	}
	return out, nil
}
