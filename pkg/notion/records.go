package notion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknotion/pkg/model"
	"github.com/jomei/notionapi"
)

const queryPageSize = 100

// QueryRecords returns every row of the database in query order. Rows without a readable
// title are skipped with a warning.
func (c *DatabaseClient) QueryRecords(ctx context.Context) ([]model.Record, error) {
	var records []model.Record
	req := &notionapi.DatabaseQueryRequest{PageSize: queryPageSize}
	for {
		resp, err := c.databases.Query(ctx, c.databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("error fetching rows from Notion: %w", classify(err))
		}
		for i := range resp.Results {
			rec, err := c.recordFromPage(&resp.Results[i])
			if err != nil {
				c.logger.Warn("skipping malformed row", "record_id", resp.Results[i].ID, "err", err)
				continue
			}
			records = append(records, rec)
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		req.StartCursor = resp.NextCursor
	}
	return records, nil
}

// CreateRecord adds a row to the database.
func (c *DatabaseClient) CreateRecord(ctx context.Context, fields model.RecordFields) (model.Record, error) {
	props := notionapi.Properties{
		c.props.Title:    titleProperty(fields.Title),
		c.props.TaskList: richTextProperty(fields.TaskList),
		c.props.Status:   selectProperty(fields.Status),
	}
	if fields.Due != nil {
		props[c.props.Due] = dateProperty(*fields.Due)
	}

	page, err := c.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.databaseID,
		},
		Properties: props,
	})
	if err != nil {
		return model.Record{}, fmt.Errorf("error saving task to Notion: %w", classify(err))
	}
	return c.recordOrFields(page, fields), nil
}

// UpdateRecord writes only the fields set in patch.
func (c *DatabaseClient) UpdateRecord(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error) {
	props := notionapi.Properties{}
	if patch.Title != nil {
		props[c.props.Title] = titleProperty(*patch.Title)
	}
	if patch.TaskList != nil {
		props[c.props.TaskList] = richTextProperty(*patch.TaskList)
	}
	if patch.Status != nil {
		props[c.props.Status] = selectProperty(*patch.Status)
	}

	page, err := c.pages.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{Properties: props})
	if err != nil {
		return model.Record{}, fmt.Errorf("error updating row %s in Notion: %w", id, classify(err))
	}
	rec, err := c.recordFromPage(page)
	if err != nil {
		return model.Record{ID: id}, nil
	}
	return rec, nil
}

// ArchiveRecord archives a row. Rows are never deleted.
func (c *DatabaseClient) ArchiveRecord(ctx context.Context, id string) (model.Record, error) {
	page, err := c.pages.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{},
		Archived:   true,
	})
	if err != nil {
		return model.Record{}, fmt.Errorf("error archiving row %s in Notion: %w", id, classify(err))
	}
	rec, err := c.recordFromPage(page)
	if err != nil {
		return model.Record{ID: id, Archived: true}, nil
	}
	return rec, nil
}

func (c *DatabaseClient) recordOrFields(page *notionapi.Page, fields model.RecordFields) model.Record {
	if page != nil {
		if rec, err := c.recordFromPage(page); err == nil {
			return rec
		}
	}
	rec := model.Record{Title: fields.Title, TaskList: fields.TaskList, Status: fields.Status, Due: fields.Due}
	if page != nil {
		rec.ID = string(page.ID)
	}
	return rec
}

func (c *DatabaseClient) recordFromPage(page *notionapi.Page) (model.Record, error) {
	if page == nil {
		return model.Record{}, fmt.Errorf("nil page")
	}
	title, ok := titleOf(page.Properties[c.props.Title])
	if !ok {
		return model.Record{}, fmt.Errorf("missing title property %q", c.props.Title)
	}
	if strings.TrimSpace(title) == "" {
		return model.Record{}, fmt.Errorf("empty title property %q", c.props.Title)
	}
	return model.Record{
		ID:       string(page.ID),
		Title:    title,
		TaskList: richTextOf(page.Properties[c.props.TaskList]),
		Status:   model.RecordStatus(selectOf(page.Properties[c.props.Status])),
		Due:      dateOf(page.Properties[c.props.Due]),
		Archived: page.Archived,
	}, nil
}

func titleProperty(s string) *notionapi.TitleProperty {
	return &notionapi.TitleProperty{Title: richText(s)}
}

func richTextProperty(s string) *notionapi.RichTextProperty {
	return &notionapi.RichTextProperty{RichText: richText(s)}
}

func selectProperty(status model.RecordStatus) *notionapi.SelectProperty {
	return &notionapi.SelectProperty{Select: notionapi.Option{Name: string(status)}}
}

func dateProperty(t time.Time) *notionapi.DateProperty {
	start := notionapi.Date(t)
	return &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}, PlainText: s}}
}

func plainText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}

func titleOf(p notionapi.Property) (string, bool) {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title), true
	case notionapi.TitleProperty:
		return plainText(v.Title), true
	}
	return "", false
}

func richTextOf(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case notionapi.RichTextProperty:
		return plainText(v.RichText)
	}
	return ""
}

func selectOf(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.SelectProperty:
		return v.Select.Name
	case notionapi.SelectProperty:
		return v.Select.Name
	}
	return ""
}

func dateOf(p notionapi.Property) *time.Time {
	var d *notionapi.DateObject
	switch v := p.(type) {
	case *notionapi.DateProperty:
		d = v.Date
	case notionapi.DateProperty:
		d = v.Date
	}
	if d == nil || d.Start == nil {
		return nil
	}
	t := time.Time(*d.Start)
	return &t
}

// classify wraps err with the model error kind it belongs to.
func classify(err error) error {
	if err == nil || model.KindOf(err) != model.KindUnknown {
		return err
	}

	// The client retries 429s itself and gives up with a RateLimitedError.
	var rateErr *notionapi.RateLimitedError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", model.ErrTransient, err)
	}

	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
		case apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500:
			return fmt.Errorf("%w: %v", model.ErrTransient, err)
		case apiErr.Status >= 400:
			return fmt.Errorf("%w: %v", model.ErrInvalid, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	return err
}
