package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/desertthunder/videofetcher/internal/tasks"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": shared.CleanText(err.Error())})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrEmptyURLList):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrTaskNotFound), errors.Is(err, shared.ErrOutputNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrPoolClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// user returns the resolved caller. Identity always runs first, so the zero value means a wiring bug.
func user(r *http.Request) shared.UserConfig {
	u, _ := UserFrom(r.Context())
	return u
}

// scopeAll reports whether an admin asked for every owner's tasks.
func scopeAll(r *http.Request) bool {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	return all && user(r).IsAdmin()
}

// visibleTask returns the task when the caller owns it or is an admin.
func (s *Server) visibleTask(r *http.Request, id string) (models.TaskView, error) {
	v, ok := s.manager.Get(id)
	if !ok {
		return models.TaskView{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	if u := user(r); !u.IsAdmin() && v.Owner != u.Name {
		return models.TaskView{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	return v, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req services.SubmitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.manager.Submit(user(r).Name, req.URLs, req.Quality, req.Options)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	u := user(r)
	var views []models.TaskView
	if u.IsAdmin() && r.URL.Query().Get("scope") != "mine" {
		views = s.manager.All()
	} else {
		views = s.manager.ForOwner(u.Name)
	}

	if st := r.URL.Query().Get("status"); st != "" {
		want, err := models.ParseStatus(st)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
			return
		}
		filtered := views[:0]
		for _, v := range views {
			if v.Status == want {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.visibleTask(r, r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type actionRequest struct {
	Quality string         `json:"quality,omitempty"`
	Options models.Options `json:"options"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id, action := r.PathValue("id"), r.PathValue("action")
	if _, err := s.visibleTask(r, id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	switch action {
	case "pause":
		if !s.manager.Pause(id) {
			writeError(w, http.StatusConflict, fmt.Errorf("%w: %s", shared.ErrTaskNotActive, id))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "action": action})
	case "cancel":
		if !s.manager.Cancel(id) {
			writeError(w, http.StatusConflict, fmt.Errorf("task %s is already completed", id))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "action": action})
	case "retry":
		var req actionRequest
		if r.ContentLength != 0 {
			if err := decodeBody(w, r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		res, err := s.manager.Retry(id, req.Quality, req.Options)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusAccepted, res)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown action %q", action))
	}
}

func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	owner := user(r).Name
	if scopeAll(r) {
		owner = ""
	}
	writeJSON(w, http.StatusAccepted, s.manager.RetryFailed(owner, req.Quality, req.Options))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.manager.ClearToTrash(r.Context(), user(r).Name, scopeAll(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, services.ClearResponse{Cleared: n})
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req services.ProbeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	results, err := s.manager.ProbeMany(r.Context(), req.URLs, req.Options)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	v, err := s.visibleTask(r, r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if v.Status != models.StatusCompleted {
		writeError(w, http.StatusBadRequest, fmt.Errorf("task %s is %s, not completed", v.ID, v.Status))
		return
	}

	f, err := os.Open(v.OutputPath)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", shared.ErrOutputNotFound, v.ID))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", shared.ErrOutputNotFound, v.ID))
		return
	}

	w.Header().Set("Content-Disposition", attachment(tasks.DownloadName(v)))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("videos_%s.zip", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachment(name))

	res, err := s.manager.Bundle(r.Context(), user(r).Name, scopeAll(r), w)
	if err != nil {
		if res.Files == 0 {
			w.Header().Del("Content-Disposition")
			writeError(w, statusFor(err), err)
			return
		}
		s.logger.Error("bundle aborted", "err", err, "files", res.Files)
		return
	}
	s.logger.Info("bundle sent", "owner", user(r).Name, "files", res.Files, "duplicates", res.Duplicates)
}

func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
