package hunt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"secops-service/internal/client"
)

// ElasticDataSource runs hunt queries against Elasticsearch using the
// query_string syntax hunters already know from Kibana.
type ElasticDataSource struct {
	es     *client.ESClient
	logger *zap.Logger
}

func NewElasticDataSource(es *client.ESClient, logger *zap.Logger) *ElasticDataSource {
	return &ElasticDataSource{es: es, logger: logger}
}

func (s *ElasticDataSource) Execute(ctx context.Context, dataSource, query string) (int, []string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"query_string": map[string]interface{}{"query": query},
		},
		"size": 20,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build search body: %w", err)
	}

	index := dataSource
	if index == "" {
		index = s.es.Index()
	}

	res, err := s.es.Search(ctx, index, body)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, nil, fmt.Errorf("search returned error: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source struct {
					Message string `json:"message"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	findings := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if hit.Source.Message != "" {
			findings = append(findings, hit.Source.Message)
		}
	}

	s.logger.Debug("Hunt query executed",
		zap.String("index", index),
		zap.Int("hits", parsed.Hits.Total.Value))
	return parsed.Hits.Total.Value, findings, nil
}

// NopDataSource is used when no search backend is available; queries record
// zero results instead of failing.
type NopDataSource struct{}

func (NopDataSource) Execute(ctx context.Context, dataSource, query string) (int, []string, error) {
	return 0, nil, nil
}
