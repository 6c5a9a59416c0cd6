package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/abelbrown/marketfeed/internal/model"
)

// Response is the canonical catalog response. Every backend shape is
// normalized into it on receipt.
type Response struct {
	Products      []model.Item `json:"products"`
	TotalItems    *int         `json:"totalItems,omitempty"`
	HasMorePages  *bool        `json:"hasMorePages,omitempty"`
	NextPageToken string       `json:"nextPageToken,omitempty"`
	CurrentPage   int          `json:"currentPage,omitempty"`
	TotalPages    int          `json:"totalPages,omitempty"`

	// Malformed is set when the body had no products field. The response
	// is then empty and must not be cached.
	Malformed bool `json:"-"`
}

// Total returns the reported total, falling back to the number of products.
func (r Response) Total() int {
	if r.TotalItems != nil {
		return *r.TotalItems
	}
	return len(r.Products)
}

// HasMore reports whether another page exists: the explicit flag wins, then
// a continuation token, then page metadata.
func (r Response) HasMore() bool {
	if r.HasMorePages != nil {
		return *r.HasMorePages
	}
	if r.NextPageToken != "" {
		return true
	}
	return r.TotalPages > 0 && r.CurrentPage < r.TotalPages
}

// envelope covers the field spellings seen across API revisions.
type envelope struct {
	Products        *[]model.Item   `json:"products"`
	Data            json.RawMessage `json:"data"`
	TotalItems      *int            `json:"totalItems"`
	Total           *int            `json:"total"`
	HasMorePages    *bool           `json:"hasMorePages"`
	HasMore         *bool           `json:"hasMore"`
	NextPageToken   string          `json:"nextPageToken"`
	PaginationToken string          `json:"paginationToken"`
	CurrentPage     int             `json:"currentPage"`
	Page            int             `json:"page"`
	TotalPages      int             `json:"totalPages"`
}

// Normalize decodes a response body. A bare array is a product list; an
// object must carry products directly or under data. A body with neither
// returns an empty Response wrapped in model.ErrMalformedResponse.
func Normalize(body []byte) (Response, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Response{Malformed: true}, fmt.Errorf("%w: empty body", model.ErrMalformedResponse)
	}

	if body[0] == '[' {
		var items []model.Item
		if err := json.Unmarshal(body, &items); err != nil {
			return Response{Malformed: true}, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
		}
		return Response{Products: nonNil(items)}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Response{Malformed: true}, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}

	if env.Products == nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		inner, err := Normalize(env.Data)
		if err != nil {
			return inner, err
		}
		// Outer pagination fields win over the inner ones when both exist.
		return merge(inner, env), nil
	}
	if env.Products == nil {
		return Response{Malformed: true}, fmt.Errorf("%w: missing products", model.ErrMalformedResponse)
	}

	return merge(Response{Products: nonNil(*env.Products)}, env), nil
}

func merge(r Response, env envelope) Response {
	if env.TotalItems != nil {
		r.TotalItems = env.TotalItems
	} else if env.Total != nil {
		r.TotalItems = env.Total
	}
	if env.HasMorePages != nil {
		r.HasMorePages = env.HasMorePages
	} else if env.HasMore != nil {
		r.HasMorePages = env.HasMore
	}
	if env.NextPageToken != "" {
		r.NextPageToken = env.NextPageToken
	} else if env.PaginationToken != "" {
		r.NextPageToken = env.PaginationToken
	}
	if env.CurrentPage > 0 {
		r.CurrentPage = env.CurrentPage
	} else if env.Page > 0 {
		r.CurrentPage = env.Page
	}
	if env.TotalPages > 0 {
		r.TotalPages = env.TotalPages
	}
	return r
}

func nonNil(items []model.Item) []model.Item {
	if items == nil {
		return []model.Item{}
	}
	return items
}
