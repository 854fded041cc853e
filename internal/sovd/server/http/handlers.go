package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/utils/ptr"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/auth"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

const (
	maxBodyBytes   = 1 << 20
	archiveLinkTTL = 15 * time.Minute
)

// SubmitCommandRequest is the body of POST /api/v1/commands.
type SubmitCommandRequest struct {
	VehicleID     string         `json:"vehicle_id"`
	CommandName   string         `json:"command_name"`
	CommandParams map[string]any `json:"command_params"`
}

// ArchiveLinkResponse is the body of GET /api/v1/commands/{id}/archive.
type ArchiveLinkResponse struct {
	CommandID string    `json:"command_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		s.writeError(w, util.ErrUnauthorized)
		return
	}

	var req SubmitCommandRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.VehicleID == "" {
		s.writeError(w, fmt.Errorf("vehicle_id is required: %w", util.ErrInvalidArgument))
		return
	}

	cmd, err := s.svc.SubmitCommand(r.Context(), req.VehicleID, req.CommandName, req.CommandParams, user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, cmd)
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cmds, err := s.svc.ListCommands(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cmds == nil {
		cmds = []*model.Command{}
	}
	writeJSON(w, http.StatusOK, cmds)
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.svc.GetCommand(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.svc.ListResponses(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if chunks == nil {
		chunks = []*model.ResponseChunk{}
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (s *Server) handleArchiveLink(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "archiving is disabled"})
		return
	}
	cmd, err := s.svc.GetCommand(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cmd.Status != model.CommandStatusCompleted {
		s.writeError(w, fmt.Errorf("command %s is %s, only completed commands are archived: %w",
			cmd.ID, cmd.Status, util.ErrInvalidTransition))
		return
	}

	expires := time.Now().Add(archiveLinkTTL).UTC()
	link, err := s.archive.PresignedURL(r.Context(), cmd, archiveLinkTTL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ArchiveLinkResponse{CommandID: cmd.ID, URL: link, ExpiresAt: expires})
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.svc.ListVehicles(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if vehicles == nil {
		vehicles = []*model.Vehicle{}
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (s *Server) handleRegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var v model.Vehicle
	if err := decodeBody(w, r, &v); err != nil {
		s.writeError(w, err)
		return
	}
	created, err := s.svc.RegisterVehicle(r.Context(), &v)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, util.ErrInvalidArgument)
	}
	return nil
}

func parseFilter(r *http.Request) (model.CommandFilter, error) {
	q := r.URL.Query()
	f := model.CommandFilter{
		VehicleID: q.Get("vehicle_id"),
		UserID:    q.Get("user_id"),
		Status:    model.CommandStatus(q.Get("status")),
	}

	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt("limit", q.Get("limit")); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt("offset", q.Get("offset")); err != nil {
		return f, err
	}
	return f, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", s, util.ErrInvalidArgument)
	}
	return ptr.To(t), nil
}

func parseInt(name, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, util.ErrInvalidArgument)
	}
	return n, nil
}
