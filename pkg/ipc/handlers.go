package ipc

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/agent"
	"github.com/entrhq/scout/pkg/security/workspace"
	"github.com/entrhq/scout/pkg/types"
)

type queryResponse struct {
	Response  *types.Response `json:"response"`
	RequestID string          `json:"requestId"`
	Success   bool            `json:"success"`
}

// handleQuery runs a session and answers once it is done. Dropping the HTTP
// request cancels the session.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req types.RunRequest
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesSmall); err != nil {
		respondFailure(w, status, err)
		return
	}
	if err := req.Normalize(); err != nil {
		respondFailure(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.deps.Sessions.Run(r.Context(), req.Query, req.RequestID)
	if err != nil {
		var sessErr *agent.SessionError
		switch {
		case errors.Is(err, agent.ErrDuplicateRequest):
			respondFailure(w, http.StatusConflict, err)
		case errors.Is(err, agent.ErrCancelled):
			respondFailure(w, http.StatusConflict, errors.New("request was cancelled"))
		case errors.As(err, &sessErr):
			respondFailure(w, http.StatusBadGateway, errors.New(sessErr.Message))
		default:
			respondFailure(w, http.StatusInternalServerError, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, queryResponse{Success: true, RequestID: req.RequestID, Response: resp})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if err := s.deps.Sessions.Cancel(requestID); err != nil {
		respondFailure(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"active": s.deps.Sessions.Active()})
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Sessions.Snapshot(chi.URLParam(r, "requestID"))
	if !ok {
		respondFailure(w, http.StatusNotFound, agent.ErrUnknownRequest)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type navigateRequest struct {
	URL string `json:"url"`
}

type navigateResponse struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Screenshot string `json:"screenshot,omitempty"`
	Success    bool   `json:"success"`
}

// handleNavigate loads a page on behalf of the user. It waits for any session
// holding the browser to finish.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesSmall); err != nil {
		respondFailure(w, status, err)
		return
	}

	ctx := r.Context()
	ctrl := s.deps.Browser
	holder := "ui-" + uuid.NewString()
	if err := ctrl.Acquire(ctx, holder); err != nil {
		respondFailure(w, http.StatusServiceUnavailable, err)
		return
	}
	defer ctrl.Release(holder)

	url, err := ctrl.Navigate(ctx, req.URL)
	if err != nil {
		respondFailure(w, http.StatusOK, err)
		return
	}
	page, err := ctrl.ReadPage(ctx)
	if err != nil {
		respondFailure(w, http.StatusOK, err)
		return
	}

	resp := navigateResponse{
		Success: true,
		URL:     url,
		Title:   page.Title,
		Content: page.Content,
	}
	if shot := ctrl.Screenshot(ctx); shot != nil {
		resp.Screenshot = "data:image/png;base64," + base64.StdEncoding.EncodeToString(shot)
	}

	s.hub.Broadcast(Notice{Type: NoticeBrowserState, Payload: browserState{URL: url, Title: page.Title, Content: page.Content}})
	respondJSON(w, http.StatusOK, resp)
}

type browserState struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// handleBrowserState reports the last known page. It never fails.
func (s *Server) handleBrowserState(w http.ResponseWriter, r *http.Request) {
	state := s.deps.Browser.State()
	respondJSON(w, http.StatusOK, browserState{URL: state.URL, Title: state.Title, Content: state.Content})
}

type selectDirectoryRequest struct {
	Path string `json:"path"`
}

type directoryResponse struct {
	Path    string `json:"path,omitempty"`
	Success bool   `json:"success"`
}

func (s *Server) handleSelectDirectory(w http.ResponseWriter, r *http.Request) {
	var req selectDirectoryRequest
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesSmall); err != nil {
		respondFailure(w, status, err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		respondFailure(w, http.StatusBadRequest, workspace.ErrEmptyPath)
		return
	}

	root, err := s.deps.Sandbox.SetRoot(req.Path)
	if err != nil {
		respondFailure(w, http.StatusOK, err)
		return
	}
	s.logger.Info("working directory selected", zap.String("root", root))
	s.hub.Broadcast(Notice{Type: NoticeWorkingDirectory, Payload: map[string]string{"workingDirectory": root}})
	respondJSON(w, http.StatusOK, directoryResponse{Success: true, Path: root})
}

func (s *Server) handleGetDirectory(w http.ResponseWriter, r *http.Request) {
	var dir *string
	if root, ok := s.deps.Sandbox.Root(); ok {
		dir = &root
	}
	respondJSON(w, http.StatusOK, map[string]*string{"workingDirectory": dir})
}

type listResponse struct {
	Entries []workspace.Entry `json:"entries"`
	Success bool              `json:"success"`
}

func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Sandbox.List(r.URL.Query().Get("relativePath"))
	if err != nil {
		respondFailure(w, http.StatusOK, err)
		return
	}
	if entries == nil {
		entries = []workspace.Entry{}
	}
	respondJSON(w, http.StatusOK, listResponse{Success: true, Entries: entries})
}

type fileResponse struct {
	Content string `json:"content"`
	Success bool   `json:"success"`
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	content, err := s.deps.Sandbox.Read(r.URL.Query().Get("relativePath"))
	if err != nil {
		respondFailure(w, http.StatusOK, err)
		return
	}
	respondJSON(w, http.StatusOK, fileResponse{Success: true, Content: content})
}

type writeFileRequest struct {
	RelativePath string `json:"relativePath"`
	Content      string `json:"content"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesFile); err != nil {
		respondFailure(w, status, err)
		return
	}
	if err := s.deps.Sandbox.Write(req.RelativePath, req.Content); err != nil {
		respondFailure(w, http.StatusOK, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
