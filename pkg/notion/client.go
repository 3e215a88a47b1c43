// Package notion stores synchronized tasks as pages of a Notion database.
package notion

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jomei/notionapi"
)

// Property names of the database columns.
type Properties struct {
	Title    string
	TaskList string
	Status   string
	Due      string
}

// DefaultProperties match the column names of the reference database.
func DefaultProperties() Properties {
	return Properties{
		Title:    "Name",
		TaskList: "TaskList",
		Status:   "Status",
		Due:      "Due Date",
	}
}

type databaseQuerier interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

type pageWriter interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// DatabaseClient reads and writes the rows of one database.
type DatabaseClient struct {
	databases  databaseQuerier
	pages      pageWriter
	databaseID notionapi.DatabaseID
	props      Properties
	logger     *log.Logger
}

// NewClient creates a client for the database using an integration token.
func NewClient(token, databaseID string, props Properties, logger *log.Logger) *DatabaseClient {
	api := notionapi.NewClient(notionapi.Token(token))
	return newDatabaseClient(api.Database, api.Page, databaseID, props, logger)
}

func newDatabaseClient(databases databaseQuerier, pages pageWriter, databaseID string, props Properties, logger *log.Logger) *DatabaseClient {
	if logger == nil {
		logger = log.Default()
	}
	return &DatabaseClient{
		databases:  databases,
		pages:      pages,
		databaseID: notionapi.DatabaseID(databaseID),
		props:      props,
		logger:     logger,
	}
}
