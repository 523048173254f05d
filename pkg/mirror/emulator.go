package mirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/stacklok/search-mirror/pkg/index"
	"github.com/stacklok/search-mirror/pkg/local"
	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/searcherr"
)

// skippedResult stands in for a query the stopIfEnoughMatches strategy did
// not run.
type skippedResult struct {
	Hits             []json.RawMessage `json:"hits"`
	Page             int               `json:"page"`
	NbHits           int               `json:"nbHits"`
	NbPages          int               `json:"nbPages"`
	HitsPerPage      int               `json:"hitsPerPage"`
	ProcessingTimeMS int               `json:"processingTimeMS"`
	Params           string            `json:"params"`
	Index            string            `json:"index"`
	Processed        bool              `json:"processed"`
}

func newSkippedResult(indexName string, q *query.Query) skippedResult {
	return skippedResult{
		Hits:             []json.RawMessage{},
		ProcessingTimeMS: 1,
		Params:           q.Build(),
		Index:            indexName,
		Processed:        false,
	}
}

type multipleQueriesResponse struct {
	Results []json.RawMessage `json:"results"`
}

func (m *MirroredIndex) multipleQueriesLocal(
	ctx context.Context, queries []*query.Query, strategy index.MultipleQueriesStrategy,
) (json.RawMessage, error) {
	return m.withLocalData(ctx, func(ctx context.Context, lg LocalGateway) (json.RawMessage, error) {
		return emulateMultipleQueries(ctx, m.name, queries, strategy,
			func(ctx context.Context, params string) local.Response {
				return lg.Search(ctx, params)
			})
	})
}

// emulateMultipleQueries runs a batch one query at a time with search and
// shapes the answer like the remote multi-query endpoint. With
// stopIfEnoughMatches, the queries following one that filled its page are
// replaced by skipped placeholders.
func emulateMultipleQueries(
	ctx context.Context,
	indexName string,
	queries []*query.Query,
	strategy index.MultipleQueriesStrategy,
	search func(ctx context.Context, params string) local.Response,
) (json.RawMessage, error) {
	resp := multipleQueriesResponse{Results: make([]json.RawMessage, 0, len(queries))}
	enough := false

	for _, q := range queries {
		if enough {
			placeholder, err := json.Marshal(newSkippedResult(indexName, q))
			if err != nil {
				return nil, err
			}
			resp.Results = append(resp.Results, placeholder)
			continue
		}

		data, err := fromResponse(search(ctx, q.Build()))
		if err != nil {
			return nil, err
		}
		tagged, err := withIndexName(data, indexName)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, tagged)

		if strategy == index.StrategyStopIfEnoughMatches {
			nbHits := gjson.GetBytes(data, "nbHits").Int()
			hitsPerPage := gjson.GetBytes(data, "hitsPerPage").Int()
			enough = nbHits >= hitsPerPage
		}
	}

	return json.Marshal(resp)
}

// withIndexName adds the "index" key to a search response.
func withIndexName(data json.RawMessage, indexName string) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &searcherr.MalformedResponseError{Field: "results", Err: fmt.Errorf("search response is not an object: %w", err)}
	}
	name, err := json.Marshal(indexName)
	if err != nil {
		return nil, err
	}
	fields["index"] = name
	return json.Marshal(fields)
}
