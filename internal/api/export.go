package api

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// exportLimit caps one CSV download; exports page with the offset parameter.
const exportLimit = 10000

var exportHeader = []string{"title", "source_url", "archive_url", "status", "submitted_at"}

// exportSubmissions streams the submission history as CSV. Titles come from
// the content registry; batch records and forgotten items leave the column
// empty.
func (s *Server) exportSubmissions(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = exportLimit

	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("wayback-submissions-%s.csv", s.clock.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		s.logger.Error("write CSV header", zap.Error(err))
		return
	}
	for _, rec := range records {
		title := ""
		if rec.ContentID > 0 {
			if item, ok := s.registry.Get(r.Context(), rec.ContentID); ok {
				title = item.Title
			}
		}
		row := []string{
			title,
			rec.SourceURL,
			rec.ArchiveURL,
			string(rec.Status),
			rec.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(row); err != nil {
			s.logger.Error("write CSV row", zap.Int64("record_id", rec.ID), zap.Error(err))
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("flush CSV", zap.Error(err))
	}
}
