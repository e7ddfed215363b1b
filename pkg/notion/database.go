package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages from a Notion database, handling pagination.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	return Query(ctx, c, dbID, filter, 0, nil)
}

// Query fetches pages from a Notion database until limit pages have been
// collected or the results are exhausted. limit <= 0 means no limit. When
// keep is non-nil, pages it rejects are dropped and do not count toward the
// limit.
// Rate limiting is enforced by the Client (3 req/s by default).
// While page N is being appended, page N+1 is prefetched in a goroutine.
func Query(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest, limit int, keep func(notionapi.Page) bool) ([]notionapi.Page, error) {
	var all []notionapi.Page

	newReq := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query cancelled")
		}

		var resp *notionapi.DatabaseQueryResponse
		var err error
		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, newReq(""))
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		for _, p := range resp.Results {
			if keep != nil && !keep(p) {
				continue
			}
			all = append(all, p)
			if limit > 0 && len(all) == limit {
				return all, nil
			}
		}
		if !resp.HasMore {
			break
		}

		nextReq := newReq(resp.NextCursor)
		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, nextReq)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}
