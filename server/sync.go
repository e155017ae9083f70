package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/model"
)

// SyncPushResponse is the response for push requests
type SyncPushResponse struct {
	Status string `json:"status"`
}

func bindSnapshot(c echo.Context) (*model.Snapshot, error) {
	var in model.Snapshot
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid snapshot: "+err.Error())
	}
	return &in, nil
}

// handleSyncPush merges a client's snapshot into the server state. A
// client never dictates the server's own sync settings.
func (s *Server) handleSyncPush(c echo.Context) error {
	in, err := bindSnapshot(c)
	if err != nil {
		return err
	}
	in.Settings.Sync = nil

	merged, err := s.replica.MergeRemote(c.Request().Context(), in)
	if err != nil {
		return err
	}

	logger.Info("Merged client snapshot",
		logger.F("tasks", len(merged.Tasks)),
		logger.F("tombstones", len(merged.Tombstones)))
	return c.JSON(http.StatusOK, SyncPushResponse{Status: "ok"})
}

// handleSyncPull returns the server's current snapshot
func (s *Server) handleSyncPull(c echo.Context) error {
	return c.JSON(http.StatusOK, s.replica.Snapshot().Outbound())
}

func (s *Server) handleGetAll(c echo.Context) error {
	return c.JSON(http.StatusOK, s.replica.Snapshot().Outbound())
}

// handlePutAll replaces the server state wholesale.
func (s *Server) handlePutAll(c echo.Context) error {
	in, err := bindSnapshot(c)
	if err != nil {
		return err
	}
	in.Settings.Sync = s.replica.Snapshot().Settings.Sync

	if err := s.replica.SaveAllData(c.Request().Context(), in); err != nil {
		return err
	}
	logger.Warn("Server state replaced", logger.F("tasks", len(in.Tasks)))
	return c.JSON(http.StatusOK, SyncPushResponse{Status: "ok"})
}
