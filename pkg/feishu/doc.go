// Package feishu provides a client for the Feishu (Lark) open-platform REST
// API, focused on the Bitable multi-dimensional table service.
//
// # Overview
//
// The client wraps the vendor endpoints an application needs to push tabular
// data into a Bitable table and read it back:
//
//   - Tenant and app access token issuance with in-process caching and
//     expiry-based refresh
//   - User id lookup by email or phone
//   - Record insert, chunked batch insert, paginated query, batch delete,
//     and delete-all
//
// # Quick Start
//
//	client, err := feishu.New(feishu.Config{
//		AppID:     os.Getenv("FEISHU_APP_ID"),
//		AppSecret: os.Getenv("FEISHU_APP_SECRET"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rec := feishu.NewRecord().
//		Set("Name", "example").
//		Set("Updated", time.Now())
//
//	id, err := client.InsertRecord(ctx, appToken, tableID, rec)
//
// # Tokens
//
// Access tokens are fetched lazily on the first authorized call and cached
// for the server-declared lifetime (2 hours by default) minus a refresh
// buffer. A single slot per token kind is replaced wholesale on refresh.
// When the vendor reports an expired or invalid token the client invalidates
// the slot and retries the request exactly once before surfacing
// ErrAuthentication.
//
// # Batch Operations
//
// BatchInsertRecords and DeleteRecords split their input into chunks of at
// most Config.ChunkSize records and issue one request per chunk, in order.
// When a chunk fails, the returned BatchResult reports which records were
// confirmed before the failure, so partial success is observable rather than
// silently lost.
//
// # Errors
//
// All failures surface as *Error wrapping one of the sentinel errors
// (ErrAuthentication, ErrAPIRequest, ErrRateLimited, ErrTimeout,
// ErrValidation), so callers can branch with errors.Is or inspect the HTTP
// status and vendor code via errors.As.
package feishu
