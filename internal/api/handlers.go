package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"rawlabel/internal/annotation"
	"rawlabel/internal/assetstore"
	"rawlabel/internal/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: formatTime(s.now())})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var criteria map[string]any
	if raw := strings.TrimSpace(query.Get("search")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &criteria); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: search must be a JSON object: %v", services.ErrInvalidInput, err))
			return
		}
	}
	page := annotation.PageRequest{Token: strings.TrimSpace(query.Get("page_token"))}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			s.writeError(w, r, fmt.Errorf("%w: page_size must be a non-negative integer", services.ErrInvalidInput))
			return
		}
		page.Size = size
	}

	result, err := s.annotations.ListImages(r.Context(), criteria, strings.TrimSpace(query.Get("order_by")), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromPage(result))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	source, err := s.resolveSource(r.URL.Query().Get("source"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := assetstore.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.previews.GetPreview(services.WithSourceID(r.Context(), source), source, kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	source, err := s.resolveSource(r.URL.Query().Get("source"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	decided, err := s.annotations.Annotations(r.Context(), source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := AnnotationsResponse{Source: source, Annotations: make(map[string]Consensus, len(decided))}
	for key, c := range decided {
		resp.Annotations[string(key)] = FromConsensus(c)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	source, key, err := s.sourceAndKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.annotations.Consensus(r.Context(), source, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromConsensus(c))
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	source, key, err := s.sourceAndKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tallies, err := s.annotations.Proposals(r.Context(), source, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := ProposalListResponse{Source: source, Key: string(key), Proposals: make([]Proposal, 0, len(tallies))}
	for _, t := range tallies {
		resp.Proposals = append(resp.Proposals, FromTally(t))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req ProposeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	source, err := s.resolveSource(req.Source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	key, err := annotation.ParseKey(req.Key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, _ := services.PrincipalFromContext(r.Context())
	id, err := s.annotations.Propose(r.Context(), source, key, user, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ProposeResponse{ID: int64(id)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	source, key, err := s.sourceAndKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, _ := services.PrincipalFromContext(r.Context())
	if err := s.annotations.Withdraw(r.Context(), source, key, user); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: invalid proposal id", services.ErrInvalidInput))
		return
	}
	var req VoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Weight == nil {
		s.writeError(w, r, fmt.Errorf("%w: weight is required", services.ErrInvalidWeight))
		return
	}
	user, _ := services.PrincipalFromContext(r.Context())
	if err := s.annotations.Vote(r.Context(), annotation.ProposalID(id), user, *req.Weight); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	key, err := annotation.ParseKey(r.URL.Query().Get("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	values, err := s.annotations.DistinctValues(r.Context(), key, r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if values == nil {
		values = []string{}
	}
	s.writeJSON(w, http.StatusOK, ValuesResponse{Key: string(key), Values: values})
}

func (s *Server) sourceAndKey(r *http.Request) (string, annotation.Key, error) {
	source, err := s.resolveSource(r.URL.Query().Get("source"))
	if err != nil {
		return "", "", err
	}
	key, err := annotation.ParseKey(r.URL.Query().Get("key"))
	if err != nil {
		return "", "", err
	}
	return source, key, nil
}
