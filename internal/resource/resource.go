// Package resource exposes one typed collection per REST entity. Each
// collection knows its endpoint, normalizes records after every read or write,
// and turns failed API results into errors.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"schooladmin/internal/apiclient"
	"schooladmin/internal/cache"
)

// ErrUnauthorized matches any APIError caused by a rejected or missing credential.
var ErrUnauthorized = errors.New("resource: unauthorized")

// maxConcurrentDeletes bounds the in-flight requests of one bulk delete.
const maxConcurrentDeletes = 8

// APIError is a failed API call surfaced to screens.
type APIError struct {
	Status       int
	Message      string
	Unauthorized bool
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Unauthorized
}

func toError(status int, unauthorized bool, msg, fallback string) error {
	if msg == "" {
		msg = fallback
	}
	return &APIError{Status: status, Message: msg, Unauthorized: unauthorized}
}

// Page is the paginated list envelope. Endpoints that answer with a bare
// array decode into a single page whose Count is the array length.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

type pageEnvelope[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func (p *Page[T]) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*p = Page[T]{Count: len(items), Results: items}
		return nil
	}
	var env pageEnvelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	*p = Page[T]{Count: env.Count, Next: env.Next, Previous: env.Previous, Results: env.Results}
	return nil
}

// ListParams are the query parameters of a list request.
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	Ordering string
	Filters  url.Values
}

// Values encodes the params as the API expects them.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	for k, vals := range p.Filters {
		v[k] = append([]string(nil), vals...)
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Ordering != "" {
		v.Set("ordering", p.Ordering)
	}
	return v
}

// Uploads are binary form fields keyed by field name. Writes carrying any
// upload are sent as multipart.
type Uploads map[string]apiclient.File

// Names are the singular and plural nouns used in fallback messages.
type Names struct {
	One  string
	Many string
}

// Collection is the service for one entity.
type Collection[T any] struct {
	client   *apiclient.Client
	query    *cache.Query
	scope    string
	endpoint string
	prefix   string
	names    Names
	sanitize func(T) T
}

func newCollection[T any](client *apiclient.Client, query *cache.Query, scope, endpoint, prefix string, names Names, sanitize func(T) T) *Collection[T] {
	if sanitize == nil {
		sanitize = func(v T) T { return v }
	}
	return &Collection[T]{
		client:   client,
		query:    query,
		scope:    scope,
		endpoint: endpoint,
		prefix:   prefix,
		names:    names,
		sanitize: sanitize,
	}
}

// Prefix is the cache prefix invalidated by this collection's mutations.
func (c *Collection[T]) Prefix() string { return c.prefix }

// List fetches one page of the collection.
func (c *Collection[T]) List(ctx context.Context, p ListParams) (Page[T], error) {
	return c.list(ctx, p.Values(), "Failed to fetch "+c.names.Many)
}

func (c *Collection[T]) list(ctx context.Context, q url.Values, fallback string) (Page[T], error) {
	return cache.Remember(ctx, c.query, c.key(q), func(ctx context.Context) (Page[T], error) {
		res := apiclient.Fetch[Page[T]](ctx, c.client, apiclient.Request{Path: c.endpoint, Query: q})
		if !res.Success {
			return Page[T]{}, toError(res.Status, res.Unauthorized, res.Error, fallback)
		}
		if res.Data == nil {
			return Page[T]{}, nil
		}
		page := *res.Data
		for i := range page.Results {
			page.Results[i] = c.sanitize(page.Results[i])
		}
		return page, nil
	})
}

// Get fetches one record.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	q := url.Values{"id": {id}}
	return cache.Remember(ctx, c.query, c.key(q), func(ctx context.Context) (T, error) {
		res := apiclient.Fetch[T](ctx, c.client, apiclient.Request{Path: c.item(id)})
		var zero T
		if !res.Success {
			return zero, toError(res.Status, res.Unauthorized, res.Error, "Failed to fetch "+c.names.One)
		}
		if res.Data == nil {
			return zero, &APIError{Status: res.Status, Message: "Failed to fetch " + c.names.One}
		}
		return c.sanitize(*res.Data), nil
	})
}

// Create posts a new record. body is any JSON-serializable value.
func (c *Collection[T]) Create(ctx context.Context, body any, files Uploads) (T, error) {
	return c.write(ctx, http.MethodPost, c.endpoint, body, files, "Failed to create "+c.names.One)
}

// Update replaces a record.
func (c *Collection[T]) Update(ctx context.Context, id string, body any, files Uploads) (T, error) {
	return c.write(ctx, http.MethodPut, c.item(id), body, files, "Failed to update "+c.names.One)
}

// Patch partially updates a record.
func (c *Collection[T]) Patch(ctx context.Context, id string, body any, files Uploads) (T, error) {
	return c.write(ctx, http.MethodPatch, c.item(id), body, files, "Failed to patch "+c.names.One)
}

// Delete removes a record.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.delete(ctx, id, c.prefix)
}

func (c *Collection[T]) delete(ctx context.Context, id, revalidate string) error {
	res := c.client.Do(ctx, apiclient.Request{
		Method:     http.MethodDelete,
		Path:       c.item(id),
		Revalidate: revalidate,
	})
	if !res.Success {
		return toError(res.Status, res.Unauthorized, res.Error, "Failed to delete "+c.names.One)
	}
	return nil
}

// DeleteMany deletes every id concurrently and waits for all of them. The
// cache is invalidated once after the batch settles, whatever the outcome.
func (c *Collection[T]) DeleteMany(ctx context.Context, ids []string) BatchResult {
	out := BatchResult{Outcomes: make([]Outcome, len(ids))}
	if len(ids) == 0 {
		return out
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentDeletes)
	for i, id := range ids {
		g.Go(func() error {
			out.Outcomes[i] = Outcome{ID: id, Err: c.delete(ctx, id, "")}
			return nil
		})
	}
	_ = g.Wait()

	c.client.Invalidate(ctx, c.prefix)
	return out
}

func (c *Collection[T]) write(ctx context.Context, method, path string, body any, files Uploads, fallback string) (T, error) {
	req := apiclient.Request{Method: method, Path: path, Body: body, Revalidate: c.prefix}
	if len(files) > 0 {
		req.Multipart = true
		req.Files = files
	}
	res := apiclient.Fetch[T](ctx, c.client, req)
	var zero T
	if !res.Success {
		return zero, toError(res.Status, res.Unauthorized, res.Error, fallback)
	}
	if res.Data == nil {
		return zero, nil
	}
	return c.sanitize(*res.Data), nil
}

func (c *Collection[T]) item(id string) string {
	return c.endpoint + url.PathEscape(id) + "/"
}

// key scopes cache entries to the signed-in user; invalidation by prefix
// still clears every scope.
func (c *Collection[T]) key(q url.Values) string {
	scoped := url.Values{}
	for k, v := range q {
		scoped[k] = v
	}
	if c.scope != "" {
		scoped.Set("_scope", c.scope)
	}
	return cache.Key(c.prefix, scoped)
}
