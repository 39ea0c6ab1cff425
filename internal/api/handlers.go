// Package api is the HTTP control surface (teacher's internal/api,
// generalized from one hard-coded folder to the configured set in the
// Config Store).
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/random"
	"github.com/rs/zerolog"

	"docsync/internal/conflict"
	"docsync/internal/db"
	"docsync/internal/models"
	"docsync/internal/syncloop"
)

// API wires the HTTP surface to the control-plane database and the
// running folder workers.
type API struct {
	db      *db.DB
	workers map[string]*syncloop.Worker
}

// SetupRoutes mounts the control API under g, matching the teacher's
// public-login / protected-group split.
func SetupRoutes(g *echo.Group, database *db.DB, workers map[string]*syncloop.Worker, logSubscribe func(id string) <-chan []byte, logUnsubscribe func(id string)) {
	a := &API{db: database, workers: workers}

	g.POST("/login", a.login)

	protected := g.Group("", a.authMiddleware)
	protected.GET("/folders", a.listFolders)
	protected.PUT("/folders", a.upsertFolder)
	protected.DELETE("/folders/:name", a.deleteFolder)
	protected.GET("/folders/:name/status", a.folderStatus)
	protected.POST("/folders/:name/pause", a.pauseFolder)
	protected.POST("/folders/:name/resume", a.resumeFolder)
	protected.GET("/folders/:name/conflicts", a.listConflicts)
	protected.POST("/folders/:name/conflicts/:id/restore-local", a.restoreLocalVersion)
	protected.GET("/logs", func(c echo.Context) error { return a.streamLogs(c, logSubscribe, logUnsubscribe) })
}

func (a *API) login(c echo.Context) error {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if a.db.AuthenticateUser(creds.Username, creds.Password) {
		return c.JSON(http.StatusOK, map[string]string{"token": "dummy-token"}) // replace with real JWT issuance in production
	}
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
}

func (a *API) listFolders(c echo.Context) error {
	cfgs, err := models.LoadAll(a.db.DB)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, cfgs)
}

// upsertFolder persists a folder's configuration. Picking it up as a
// running worker happens on the next daemon restart — this engine does
// not hot-reload workers, matching the teacher's own config flow
// (UpdateConfig pushed straight to the running engine in place, but
// here one worker owns one folder's whole lifecycle including its
// shadow DB handle, so a clean restart is the simpler, honest choice).
func (a *API) upsertFolder(c echo.Context) error {
	var cfg models.Config
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if cfg.CanonicalName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "canonicalName is required"})
	}
	if err := models.Save(a.db.DB, cfg); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "saved; restart docsyncd to pick up folder changes"})
}

func (a *API) deleteFolder(c echo.Context) error {
	name := c.Param("name")
	if err := models.Delete(a.db.DB, name); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "deleted; restart docsyncd to stop its worker"})
}

func (a *API) worker(c echo.Context) (*syncloop.Worker, error) {
	name := c.Param("name")
	w, ok := a.workers[name]
	if !ok {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "no running worker for folder " + name})
	}
	return w, nil
}

func (a *API) folderStatus(c echo.Context) error {
	w, errResp := a.worker(c)
	if w == nil {
		return errResp
	}
	return c.JSON(http.StatusOK, w.Status())
}

func (a *API) pauseFolder(c echo.Context) error {
	w, errResp := a.worker(c)
	if w == nil {
		return errResp
	}
	w.Pause()
	return c.JSON(http.StatusOK, map[string]string{"message": "paused"})
}

func (a *API) resumeFolder(c echo.Context) error {
	w, errResp := a.worker(c)
	if w == nil {
		return errResp
	}
	w.Resume()
	return c.JSON(http.StatusOK, map[string]string{"message": "resumed"})
}

func (a *API) listConflicts(c echo.Context) error {
	name := c.Param("name")
	records, err := models.ListConflicts(a.db.DB, name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, records)
}

// restoreLocalVersion undoes an automatic conflict resolution: it
// copies the parked "_your-version" sibling back over the synced path.
// The conflict record stays in the ledger, which keeps conflict history.
// In bidirectional mode the next sync pass re-uploads the restored file
// like any other local edit.
func (a *API) restoreLocalVersion(c echo.Context) error {
	name := c.Param("name")
	id := c.Param("id")

	records, err := models.ListConflicts(a.db.DB, name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	var target *models.ConflictRecord
	for i := range records {
		if records[i].ID == id {
			target = &records[i]
			break
		}
	}
	if target == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "conflict not found"})
	}

	if err := copyFile(target.SavedAsPath, target.Path); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "local version restored"})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (a *API) streamLogs(c echo.Context, subscribe func(id string) <-chan []byte, unsubscribe func(id string)) error {
	id := random.String(16)
	ch := subscribe(id)
	defer unsubscribe(id)

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(line); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			c.Response().Flush()
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// ConflictNotifier builds an onConflict callback that persists every
// conflict into the control-plane ledger, for a conflict.Handler
// wired to folderName. Storage errors are logged and swallowed, per
// spec §7's error taxonomy — never silent.
func ConflictNotifier(database *db.DB, folderName string, logger zerolog.Logger) func(conflict.Record) {
	return func(r conflict.Record) {
		if err := models.RecordConflict(database.DB, models.ConflictRecord{
			ID:          r.ID,
			FolderName:  folderName,
			Path:        r.Path,
			SavedAsPath: r.SavedAsPath,
			DetectedAt:  r.DetectedAt.Unix(),
		}); err != nil {
			logger.Error().Err(err).Str("folder", folderName).Str("path", r.Path).Msg("failed to record conflict")
		}
	}
}
