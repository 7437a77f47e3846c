package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/v4l2cast/internal/api/models"
	"github.com/smazurov/v4l2cast/internal/logging"
)

// LogsInput filters the buffered records.
type LogsInput struct {
	Module string `query:"module" example:"capture" doc:"Only records of this module"`
	Level  string `query:"level" enum:"debug,info,warn,error" example:"warn" doc:"Minimum level"`
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Return at most the newest N records, 0 for all"`
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// registerLogRoutes registers the buffered log endpoint.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Recent log records kept in memory, oldest first",
		Tags:        []string{"logs"},
	}, func(ctx context.Context, input *LogsInput) (*models.LogsResponse, error) {
		buffer := logging.GetBuffer()
		data := models.LogsData{Entries: filterLogs(buffer, input)}
		data.Count = len(data.Entries)
		if buffer != nil {
			data.Dropped = buffer.Dropped()
		}
		return &models.LogsResponse{Body: data}, nil
	})
}

func filterLogs(buffer *logging.RingBuffer, input *LogsInput) []models.LogEntry {
	result := []models.LogEntry{}
	if buffer == nil {
		return result
	}

	minRank := levelRank[strings.ToUpper(input.Level)]
	for _, entry := range buffer.ReadAll() {
		if input.Module != "" && entry.Module != input.Module {
			continue
		}
		if levelRank[strings.ToUpper(entry.Level)] < minRank {
			continue
		}
		result = append(result, models.LogEntry{
			Seq:        entry.Seq,
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
			Line:       logging.FormatLogLine(entry),
		})
	}

	if input.Limit > 0 && len(result) > input.Limit {
		result = result[len(result)-input.Limit:]
	}
	return result
}
