package feishu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// BatchOptions tunes chunked batch operations.
type BatchOptions struct {
	// ChunkSize overrides Config.ChunkSize for this operation.
	ChunkSize int
}

// BatchResult reports the outcome of a chunked batch operation. Chunks are
// issued strictly in input order, so on failure every record before FailedAt
// was confirmed by the vendor and every record from FailedAt on was not.
type BatchResult struct {
	// RecordIDs holds the vendor-assigned id of each confirmed record, in
	// input order. For deletes these echo the input ids.
	RecordIDs []string

	// Succeeded is the number of input records confirmed.
	Succeeded int

	// FailedAt is the input index of the first unconfirmed record, or -1
	// when the whole input was processed.
	FailedAt int
}

// QueryOptions tunes a paginated record query.
type QueryOptions struct {
	// PageSize is the number of records requested per page.
	// Default: 500 (the vendor maximum)
	PageSize int

	// Filter is a vendor filter expression applied server-side, e.g.
	// `CurrentValue.[Status]="active"`. Empty means no filter.
	Filter string
}

// QueryRecord is one row yielded by QueryRecords.
type QueryRecord struct {
	// ID is the vendor-assigned record id.
	ID string

	// Fields holds the record's field values.
	Fields *Record
}

const defaultPageSize = 500

type recordPayload struct {
	Fields *Record `json:"fields"`
}

type createRecordResponse struct {
	Record struct {
		RecordID string `json:"record_id"`
	} `json:"record"`
}

type batchCreateRequest struct {
	Records []recordPayload `json:"records"`
}

type batchCreateResponse struct {
	Records []struct {
		RecordID string `json:"record_id"`
	} `json:"records"`
}

type batchDeleteRequest struct {
	Records []string `json:"records"`
}

type listRecordsResponse struct {
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token"`
	Total     int    `json:"total"`
	Items     []struct {
		RecordID string  `json:"record_id"`
		Fields   *Record `json:"fields"`
	} `json:"items"`
}

// InsertRecord creates a single record and returns its vendor-assigned id.
func (c *Client) InsertRecord(ctx context.Context, appToken, tableID string, record *Record) (string, error) {
	const op = "InsertRecord"

	if err := validateTableRef(op, appToken, tableID); err != nil {
		return "", err
	}
	if record == nil || record.Len() == 0 {
		return "", &Error{Op: op, Err: ErrValidation, Msg: "record must have at least one field"}
	}

	var resp createRecordResponse
	err := c.do(ctx, op, http.MethodPost, bitableRecordsPath(appToken, tableID, ""),
		c.tenantTokens, recordPayload{Fields: record.Sanitize()}, &resp, false)
	if err != nil {
		return "", err
	}

	return resp.Record.RecordID, nil
}

// BatchInsertRecords creates records in consecutive chunks of at most the
// configured chunk size, one request per chunk, in input order. The returned
// BatchResult is non-nil even on failure so partial success is observable.
func (c *Client) BatchInsertRecords(ctx context.Context, appToken, tableID string, records []*Record, opts *BatchOptions) (*BatchResult, error) {
	const op = "BatchInsertRecords"

	chunkSize, err := c.batchChunkSize(op, appToken, tableID, opts)
	if err != nil {
		return nil, err
	}

	// Validate the whole input before the first request, so a bad record in
	// a later chunk cannot fail the operation after earlier chunks were
	// already sent.
	for i, rec := range records {
		if rec == nil {
			return nil, &Error{Op: op, Err: ErrValidation, Msg: fmt.Sprintf("record %d is nil", i)}
		}
	}

	result := &BatchResult{FailedAt: -1}

	for start := 0; start < len(records); start += chunkSize {
		end := min(start+chunkSize, len(records))

		req := batchCreateRequest{Records: make([]recordPayload, 0, end-start)}
		for _, rec := range records[start:end] {
			req.Records = append(req.Records, recordPayload{Fields: rec.Sanitize()})
		}

		var resp batchCreateResponse
		if err := c.do(ctx, op, http.MethodPost, bitableRecordsPath(appToken, tableID, "batch_create"),
			c.tenantTokens, req, &resp, false); err != nil {
			result.FailedAt = start
			return result, err
		}

		for _, rec := range resp.Records {
			result.RecordIDs = append(result.RecordIDs, rec.RecordID)
		}
		result.Succeeded = len(result.RecordIDs)

		c.logger.Info("inserted records", "done", end, "total", len(records))
	}

	result.Succeeded = len(result.RecordIDs)
	return result, nil
}

// DeleteRecords deletes records by id, chunked the same way
// BatchInsertRecords chunks inserts and with the same partial-failure
// reporting.
func (c *Client) DeleteRecords(ctx context.Context, appToken, tableID string, recordIDs []string, opts *BatchOptions) (*BatchResult, error) {
	const op = "DeleteRecords"

	chunkSize, err := c.batchChunkSize(op, appToken, tableID, opts)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{FailedAt: -1}

	for start := 0; start < len(recordIDs); start += chunkSize {
		end := min(start+chunkSize, len(recordIDs))

		req := batchDeleteRequest{Records: recordIDs[start:end]}
		if err := c.do(ctx, op, http.MethodPost, bitableRecordsPath(appToken, tableID, "batch_delete"),
			c.tenantTokens, req, nil, true); err != nil {
			result.FailedAt = start
			return result, err
		}

		result.RecordIDs = append(result.RecordIDs, recordIDs[start:end]...)
		result.Succeeded = len(result.RecordIDs)

		c.logger.Info("deleted records", "done", end, "total", len(recordIDs))
	}

	return result, nil
}

// QueryRecords returns a lazy iterator over all records matching opts,
// following the vendor's page-token pagination. Pages are fetched on demand;
// stopping early issues no further requests. Calling QueryRecords again
// restarts from the first page.
func (c *Client) QueryRecords(ctx context.Context, appToken, tableID string, opts *QueryOptions) *RecordIterator {
	it := &RecordIterator{
		ctx:      ctx,
		client:   c,
		appToken: appToken,
		tableID:  tableID,
		hasMore:  true,
	}
	if opts != nil {
		it.opts = *opts
	}
	if it.opts.PageSize == 0 {
		it.opts.PageSize = defaultPageSize
	}

	if err := validateTableRef("QueryRecords", appToken, tableID); err != nil {
		it.err = err
		it.hasMore = false
	} else if it.opts.PageSize < 0 {
		it.err = &Error{Op: "QueryRecords", Err: ErrValidation, Msg: "page size must be positive"}
		it.hasMore = false
	}

	return it
}

// DeleteAllRecords removes every record from a table. Record ids are
// enumerated and deleted one page at a time, so memory stays bounded
// regardless of table size.
func (c *Client) DeleteAllRecords(ctx context.Context, appToken, tableID string) error {
	const op = "DeleteAllRecords"

	if err := validateTableRef(op, appToken, tableID); err != nil {
		return err
	}

	for {
		// Always fetch the first page: each delete shifts the remaining
		// records forward, so a continuation token would skip rows.
		page, err := c.listRecordsPage(ctx, appToken, tableID, QueryOptions{PageSize: defaultPageSize}, "")
		if err != nil {
			return err
		}
		if len(page.Items) == 0 {
			return nil
		}

		ids := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			ids = append(ids, item.RecordID)
		}

		if _, err := c.DeleteRecords(ctx, appToken, tableID, ids, nil); err != nil {
			return err
		}
	}
}

// listRecordsPage fetches one page of records.
func (c *Client) listRecordsPage(ctx context.Context, appToken, tableID string, opts QueryOptions, pageToken string) (*listRecordsResponse, error) {
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(opts.PageSize))
	if pageToken != "" {
		params.Set("page_token", pageToken)
	}
	if opts.Filter != "" {
		params.Set("filter", opts.Filter)
	}

	path := bitableRecordsPath(appToken, tableID, "") + "?" + params.Encode()

	var resp listRecordsResponse
	if err := c.do(ctx, "QueryRecords", http.MethodGet, path, c.tenantTokens, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// batchChunkSize validates batch operation input and resolves the effective
// chunk size.
func (c *Client) batchChunkSize(op, appToken, tableID string, opts *BatchOptions) (int, error) {
	if err := validateTableRef(op, appToken, tableID); err != nil {
		return 0, err
	}

	chunkSize := c.cfg.ChunkSize
	if opts != nil && opts.ChunkSize != 0 {
		chunkSize = opts.ChunkSize
	}
	if chunkSize <= 0 {
		return 0, &Error{Op: op, Err: ErrValidation, Msg: "chunk size must be positive"}
	}
	if chunkSize > MaxChunkSize {
		return 0, &Error{
			Op:  op,
			Err: ErrValidation,
			Msg: "chunk size exceeds vendor ceiling of " + strconv.Itoa(MaxChunkSize),
		}
	}
	return chunkSize, nil
}

func validateTableRef(op, appToken, tableID string) error {
	err := validation.Errors{
		"app_token": validation.Validate(appToken, validation.Required),
		"table_id":  validation.Validate(tableID, validation.Required),
	}.Filter()
	if err != nil {
		return &Error{Op: op, Err: ErrValidation, Msg: err.Error()}
	}
	return nil
}

// RecordIterator walks query results page by page. Use like sql.Rows:
//
//	it := client.QueryRecords(ctx, appToken, tableID, nil)
//	for it.Next() {
//		rec := it.Record()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type RecordIterator struct {
	ctx      context.Context
	client   *Client
	appToken string
	tableID  string
	opts     QueryOptions

	page      []QueryRecord
	idx       int
	pageToken string
	hasMore   bool
	started   bool
	err       error
}

// Next advances to the next record, fetching the next page when the current
// one is exhausted. It returns false when iteration ends; check Err to
// distinguish completion from failure.
func (it *RecordIterator) Next() bool {
	if it.err != nil {
		return false
	}

	it.idx++
	if it.started && it.idx < len(it.page) {
		return true
	}

	for it.hasMore || !it.started {
		resp, err := it.client.listRecordsPage(it.ctx, it.appToken, it.tableID, it.opts, it.pageToken)
		if err != nil {
			it.err = err
			return false
		}
		it.started = true
		it.pageToken = resp.PageToken
		it.hasMore = resp.HasMore && resp.PageToken != ""

		it.page = it.page[:0]
		for _, item := range resp.Items {
			it.page = append(it.page, QueryRecord{ID: item.RecordID, Fields: item.Fields})
		}
		it.idx = 0

		if len(it.page) > 0 {
			return true
		}
		if !it.hasMore {
			break
		}
	}

	return false
}

// Record returns the current record. Only valid after Next returned true.
func (it *RecordIterator) Record() QueryRecord {
	return it.page[it.idx]
}

// Err returns the first error encountered during iteration, if any.
func (it *RecordIterator) Err() error {
	return it.err
}
