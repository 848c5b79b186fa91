// ABOUTME: Runs analyst-generated SQL on the warehouse from the chat page
// ABOUTME: Responds with an HTML table partial or an error alert partial

package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/2389/cortex-chat/internal/chat"
	"github.com/2389/cortex-chat/internal/render"
	"github.com/2389/cortex-chat/internal/stream"
	"github.com/2389/cortex-chat/internal/warehouse"
)

// handleRunSQL executes the submitted statement and returns a result partial
func (s *Server) handleRunSQL(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	query := r.FormValue("sql")

	res, err := s.chat.RunSQL(r.Context(), query)
	if err != nil {
		status := http.StatusUnprocessableEntity
		msg := err.Error()
		switch {
		case errors.Is(err, chat.ErrWarehouseDisabled):
			status = http.StatusServiceUnavailable
			msg = "Running SQL is not enabled. Configure the warehouse section to turn it on."
		case errors.Is(err, warehouse.ErrEmptyQuery):
			status = http.StatusBadRequest
			msg = "No SQL to run."
		}
		writePartial(w, status, render.Alert("error", msg))
		return
	}

	table := stream.NewTableData(res.ResultSet())
	table.Title = fmt.Sprintf("%d rows in %s", len(res.Rows), res.Elapsed.Round(time.Millisecond))
	if res.Truncated {
		table.Title = fmt.Sprintf("First %d rows in %s (truncated)", len(res.Rows), res.Elapsed.Round(time.Millisecond))
	}

	body, err := render.ContentHTML(table)
	if err != nil {
		s.logger.Error("failed to render query result", "error", err)
		writePartial(w, http.StatusInternalServerError, render.Alert("error", "Could not display the query result."))
		return
	}
	writePartial(w, http.StatusOK, body)
}

func writePartial(w http.ResponseWriter, status int, body template.HTML) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
