package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/gorilla/mux"

	"github.io/razzkumar/maildev/internal/filter"
	"github.io/razzkumar/maildev/internal/metrics"
	"github.io/razzkumar/maildev/internal/pagination"
	"github.io/razzkumar/maildev/internal/relay"
	"github.io/razzkumar/maildev/internal/store"
)

func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	emails, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list emails", "error", err)
		s.respondJSON(w, http.StatusNotFound, []any{})
		return
	}

	q := r.URL.Query()
	params := pagination.GetPaginationParams(q)
	query := filter.FromValues(q, pagination.SkipParam)
	if len(query) == 0 {
		metrics.ListingRequests.WithLabelValues("all").Inc()
		page := pagination.Slice(emails, params.Skip)
		metrics.ListingResultSize.Observe(float64(len(page)))
		s.respondJSON(w, http.StatusOK, page)
		return
	}

	records := make([]filter.Record, 0, len(emails))
	for _, email := range emails {
		record, err := email.Record()
		if err != nil {
			s.logger.Error("encode email record", "id", email.ID, "error", err)
			s.respondError(w, http.StatusInternalServerError, "unable to filter emails")
			return
		}
		records = append(records, record)
	}
	matched := filter.Filter(records, query)
	s.logger.Debug("filtered emails", "query", query, "matched", len(matched), "total", len(records))
	metrics.ListingRequests.WithLabelValues("filtered").Inc()
	page := pagination.Slice(matched, params.Skip)
	metrics.ListingResultSize.Observe(float64(len(page)))
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	email, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.store.MarkRead(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	email.Read = true
	s.respondJSON(w, http.StatusOK, email)
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.MarkAllRead(r.Context())
	if err != nil {
		s.logger.Error("mark all read", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, count)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAll(r.Context()); err != nil {
		s.logger.Error("delete all emails", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publishDelete("all")
	s.respondJSON(w, http.StatusOK, true)
}

func (s *Server) handleDeleteEmail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("delete email", "id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.EmailsDeleted.Inc()
	s.publishDelete(id)
	s.respondJSON(w, http.StatusOK, true)
}

func (s *Server) publishDelete(id string) {
	if err := s.hub.Publish("delete", map[string]string{"id": id}); err != nil {
		s.logger.Warn("publish delete", "id", id, "error", err)
	}
}

var cidPattern = regexp.MustCompile(`(?i)(src\s*=\s*["']?)cid:([^"'\s>]+)`)

func (s *Server) handleEmailHTML(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	email, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rewriteCIDs(email, "//"+requestHost(r)+s.prefix))
}

// rewriteCIDs points cid: image references at the attachment route.
// References to unknown content ids are left alone.
func rewriteCIDs(email store.Email, baseURL string) string {
	files := make(map[string]string, len(email.Attachments))
	for _, attachment := range email.Attachments {
		if attachment.ContentID != "" {
			files[attachment.ContentID] = attachment.GeneratedFileName
		}
	}
	return cidPattern.ReplaceAllStringFunc(email.HTML, func(match string) string {
		parts := cidPattern.FindStringSubmatch(match)
		name, ok := files[parts[2]]
		if !ok {
			return match
		}
		return parts[1] + fmt.Sprintf("%s/email/%s/attachment/%s", baseURL, email.ID, url.PathEscape(name))
	})
}

func requestHost(r *http.Request) string {
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		return host
	}
	return r.Host
}

func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	contentType, data, err := s.store.Attachment(r.Context(), vars["id"], vars["filename"])
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, "File not found")
		return
	}
	defer data.Close()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, data); err != nil {
		s.logger.Warn("stream attachment", "id", vars["id"], "error", err)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	raw, err := s.store.Raw(r.Context(), id)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, "File not found")
		return
	}
	defer raw.Close()
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.eml", id))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, raw); err != nil {
		s.logger.Warn("stream download", "id", id, "error", err)
	}
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	raw, err := s.store.Raw(r.Context(), id)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, "File not found")
		return
	}
	defer raw.Close()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, raw); err != nil {
		s.logger.Warn("stream source", "id", id, "error", err)
	}
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	email, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	recipients := relayRecipients(email)
	if relayTo, ok := vars["relayTo"]; ok {
		if err := relay.ValidateAddress(relayTo); err != nil {
			metrics.Relays.WithLabelValues("invalid").Inc()
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		recipients = []string{relayTo}
	}

	raw, err := s.store.Raw(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	defer raw.Close()

	if err := s.relayer.Relay(r.Context(), relaySender(email), recipients, raw); err != nil {
		metrics.Relays.WithLabelValues("failure").Inc()
		s.logger.Error("relay email", "id", id, "permanent", relay.IsPermanentError(err), "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.Relays.WithLabelValues("success").Inc()
	s.respondJSON(w, http.StatusOK, true)
}

func relayRecipients(email store.Email) []string {
	recipients := make([]string, 0, len(email.Envelope.To))
	for _, rcpt := range email.Envelope.To {
		recipients = append(recipients, rcpt.Address)
	}
	if len(recipients) > 0 {
		return recipients
	}
	for _, addr := range email.To {
		recipients = append(recipients, addr.Address)
	}
	return recipients
}

func relaySender(email store.Email) string {
	if email.Envelope.From.Address != "" {
		return email.Envelope.From.Address
	}
	if len(email.From) > 0 {
		return email.From[0].Address
	}
	return ""
}
