package api

import (
	"math"

	"pkt.systems/tcconsole/internal/failure"
)

// PageResult is the envelope of every paged query.
type PageResult[T any] struct {
	Success bool `json:"success"`
	Data    []T  `json:"data"`
	// Total counts matching items across the whole query.
	Total    int `json:"total"`
	Pages    int `json:"pages"`
	PageNum  int `json:"pageNum"`
	PageSize int `json:"pageSize"`
	// NextCursor is the opaque store cursor where the page traversal
	// stopped; empty once the keyspace has been fully traversed.
	NextCursor string `json:"nextCursor,omitempty"`
}

// Success returns an empty successful result. Unsupported filters answer
// with it, so it is indistinguishable from a genuine zero-match query.
func Success[T any]() PageResult[T] {
	return PageResult[T]{Success: true, Data: []T{}}
}

// SuccessPage wraps data with its paging echo.
func SuccessPage[T any](data []T, total, pageNum, pageSize int) PageResult[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if pageSize > 0 {
		pages = total / pageSize
		if total%pageSize != 0 {
			pages++
		}
	}
	return PageResult[T]{
		Success:  true,
		Data:     data,
		Total:    total,
		Pages:    pages,
		PageNum:  pageNum,
		PageSize: pageSize,
	}
}

// CheckPage validates paging parameters. Pages whose offset does not fit
// in an int are rejected, so Offset is safe after a successful check.
func CheckPage(pageNum, pageSize int) error {
	if pageNum < 1 {
		return failure.InvalidParameter("pageNum must be >= 1, got %d", pageNum)
	}
	if pageSize < 1 {
		return failure.InvalidParameter("pageSize must be > 0, got %d", pageSize)
	}
	if pageNum-1 > math.MaxInt/pageSize {
		return failure.InvalidParameter("pageNum %d with pageSize %d is out of range", pageNum, pageSize)
	}
	return nil
}

// Offset returns the zero-based index of the first item of page pageNum.
func Offset(pageNum, pageSize int) int {
	return (pageNum - 1) * pageSize
}
