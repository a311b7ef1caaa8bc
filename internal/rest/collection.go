package rest

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modelgate/modelgate/internal/backend"
	"github.com/modelgate/modelgate/internal/txn"
	"github.com/modelgate/modelgate/internal/wire"
)

const defaultPerPage = 10

// Collection serves a model's collection resource:
//
//	GET    list summaries, with domain filter, order and pagination
//	POST   create records from a list of field dicts
//	DELETE delete every record of the model
func Collection(b backend.Backend) txn.Operation {
	return func(c *gin.Context, s backend.Scope) (any, int, error) {
		model, err := b.Model(c.Param("tenant"), c.Param("name"))
		if err != nil {
			return nil, 0, err
		}

		switch c.Request.Method {
		case http.MethodGet:
			return listCollection(c, s, model)
		case http.MethodPost:
			return createRecords(c, s, model)
		case http.MethodDelete:
			return deleteCollection(s, model)
		}
		return nil, 0, fmt.Errorf("unsupported method %s", c.Request.Method)
	}
}

func listCollection(c *gin.Context, s backend.Scope, model backend.Model) (any, int, error) {
	filter, err := queryFilter(c)
	if err != nil {
		return nil, 0, err
	}
	order, err := queryOrder(c)
	if err != nil {
		return nil, 0, err
	}

	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "per_page", defaultPerPage)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	offset := (page - 1) * perPage

	items, err := model.Search(s, filter, offset, perPage, order)
	if err != nil {
		return nil, 0, err
	}
	return gin.H{"items": summaries(items)}, http.StatusOK, nil
}

func createRecords(c *gin.Context, s backend.Scope, model backend.Model) (any, int, error) {
	decoded, err := requestBody(c)
	if err != nil {
		return nil, 0, err
	}
	list, ok := decoded.([]any)
	if !ok {
		return nil, 0, fmt.Errorf("request body must be a list of field dictionaries")
	}

	values := make([]map[string]any, len(list))
	for i, item := range list {
		dict, ok := item.(map[string]any)
		if !ok {
			return nil, 0, fmt.Errorf("request body must be a list of field dictionaries")
		}
		values[i] = dict
	}

	items, err := model.Create(s, values)
	if err != nil {
		return nil, 0, err
	}
	return gin.H{"items": summaries(items)}, http.StatusCreated, nil
}

func deleteCollection(s backend.Scope, model backend.Model) (any, int, error) {
	items, err := model.Search(s, backend.Filter{}, 0, -1, nil)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if err := model.Delete(s, ids); err != nil {
		return nil, 0, err
	}
	return nil, http.StatusResetContent, nil
}

func summaries(items []backend.Summary) []backend.Summary {
	if items == nil {
		return []backend.Summary{}
	}
	return items
}

func queryFilter(c *gin.Context) (backend.Filter, error) {
	raw := c.Query("domain")
	if raw == "" {
		return backend.Filter{}, nil
	}
	decoded, err := wire.Unmarshal([]byte(raw))
	if err != nil {
		return backend.Filter{}, fmt.Errorf("malformed domain: %w", err)
	}
	return backend.ParseFilter(decoded)
}

func queryOrder(c *gin.Context) ([]backend.Order, error) {
	raw := c.Query("order")
	if raw == "" {
		return nil, nil
	}
	decoded, err := wire.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("malformed order: %w", err)
	}
	return backend.ParseOrder(decoded)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func requestBody(c *gin.Context) (any, error) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	decoded, err := wire.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("malformed request body: %w", err)
	}
	return decoded, nil
}
