package graphql

import (
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/obstacle-community/records/internal/mysql"
	"github.com/obstacle-community/records/internal/rankcache"
	"github.com/obstacle-community/records/internal/service"
)

// NewHandler parses the schema against the resolver tree and returns the
// HTTP handler serving it. Query depth is capped at 16.
func NewHandler(svc *service.RecordsService, db *mysql.DB, cache *rankcache.Cache) http.Handler {
	schema := graphql.MustParseSchema(Schema, NewResolver(svc, db, cache), graphql.MaxDepth(16))
	return &relay.Handler{Schema: schema}
}
