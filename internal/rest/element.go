package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modelgate/modelgate/internal/backend"
	"github.com/modelgate/modelgate/internal/txn"
)

// Element serves a single record of a model:
//
//	GET    read the record, optionally restricted to fields_names
//	PUT    write the record and return its updated representation
//	DELETE delete the record
func Element(b backend.Backend) txn.Operation {
	return func(c *gin.Context, s backend.Scope) (any, int, error) {
		model, err := b.Model(c.Param("tenant"), c.Param("name"))
		if err != nil {
			return nil, 0, err
		}
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid record id %q", c.Param("id"))
		}

		fields := c.QueryArray("fields_names")

		switch c.Request.Method {
		case http.MethodGet:
			rec, err := model.Read(s, id, fields)
			if err != nil {
				return nil, 0, err
			}
			return rec, http.StatusOK, nil

		case http.MethodPut:
			decoded, err := requestBody(c)
			if err != nil {
				return nil, 0, err
			}
			values, ok := decoded.(map[string]any)
			if !ok {
				return nil, 0, fmt.Errorf("request body must be a field dictionary")
			}
			if err := model.Write(s, id, values); err != nil {
				return nil, 0, err
			}
			rec, err := model.Read(s, id, fields)
			if err != nil {
				return nil, 0, err
			}
			return rec, http.StatusOK, nil

		case http.MethodDelete:
			if err := model.Delete(s, []int64{id}); err != nil {
				return nil, 0, err
			}
			return nil, http.StatusResetContent, nil
		}
		return nil, 0, fmt.Errorf("unsupported method %s", c.Request.Method)
	}
}
