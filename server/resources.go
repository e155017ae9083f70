package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/model"
)

// ResourceResponse acknowledges a single-entity write.
type ResourceResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Found  *bool  `json:"found,omitempty"` // deletes: whether an entity was removed
}

func resourceKind(c echo.Context) (model.Kind, error) {
	kind, ok := model.KindForResource(c.Param("resource"))
	if !ok {
		return "", echo.NewHTTPError(http.StatusNotFound, "unknown resource "+c.Param("resource"))
	}
	return kind, nil
}

func (s *Server) handleCreate(c echo.Context) error {
	kind, err := resourceKind(c)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return s.write(c, kind, raw)
}

// handleUpdate writes the body under the id in the path.
func (s *Server) handleUpdate(c echo.Context) error {
	kind, err := resourceKind(c)
	if err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entity: "+err.Error())
	}
	if fields == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entity: expected a JSON object")
	}
	id, err := json.Marshal(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fields["id"] = id
	raw, err := json.Marshal(fields)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entity: "+err.Error())
	}

	return s.write(c, kind, raw)
}

// write merges a single entity into the server state, so a replayed
// write older than what the server holds loses like it would in a full
// sync.
func (s *Server) write(c echo.Context, kind model.Kind, raw []byte) error {
	one := &model.Snapshot{}
	id, err := one.UpsertJSON(kind, raw)
	if errors.Is(err, model.ErrMissingID) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entity: "+err.Error())
	}

	if _, err := s.replica.MergeRemote(c.Request().Context(), one); err != nil {
		return err
	}

	logger.Debug("Entity written", logger.F("kind", kind), logger.F("id", id))
	return c.JSON(http.StatusOK, ResourceResponse{Status: "ok", ID: id})
}

// handleDelete merges the tombstone sent in the body, so a replayed
// delete keeps the time it happened on the client. Without a body the
// entity is deleted at server time.
func (s *Server) handleDelete(c echo.Context) error {
	kind, err := resourceKind(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	ctx := c.Request().Context()

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var found bool
	if len(bytes.TrimSpace(raw)) == 0 {
		_, found = s.replica.Delete(kind, id)
		if err := s.replica.Flush(ctx); err != nil {
			return err
		}
	} else {
		var ts model.Tombstone
		if err := json.Unmarshal(raw, &ts); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid tombstone: "+err.Error())
		}
		ts.EntityType, ts.ID = kind, id
		if ts.DeletedAt.IsZero() {
			ts.DeletedAt = s.clock.Now().UTC()
		}

		before := s.replica.Snapshot().Count(kind)
		merged, err := s.replica.MergeRemote(ctx, &model.Snapshot{Tombstones: []model.Tombstone{ts}})
		if err != nil {
			return err
		}
		found = merged.Count(kind) < before
	}

	logger.Info("Entity deleted", logger.F("kind", kind), logger.F("id", id), logger.F("found", found))
	return c.JSON(http.StatusOK, ResourceResponse{Status: "ok", ID: id, Found: &found})
}
