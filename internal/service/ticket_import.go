package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/observability"
)

var (
	// ErrImportTooLarge indicates the uploaded CSV exceeds the configured size.
	ErrImportTooLarge = apperror.ErrValidation.Detail("ticket import exceeds the maximum upload size")
	// ErrImportType indicates the upload is not a CSV document.
	ErrImportType = apperror.ErrValidation.Detail("ticket import must be a CSV file")
)

// Import reads a CSV of detailId,student,type,points[,date] rows and issues
// them as one batch. A header row is optional.
func (s *ticketService) Import(ctx context.Context, actor Actor, activityID string, file *multipart.FileHeader) ([]dto.TicketResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ticket.import")
	defer span.End()

	if file == nil {
		err := apperror.ErrValidation.Detail("file is required")
		failSpan(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("import.filename", strings.TrimSpace(file.Filename)),
		attribute.Int64("import.request_size", file.Size),
	)
	if s.importMaxBytes > 0 && file.Size > s.importMaxBytes {
		observability.TicketBatchesRejected().WithLabelValues("size").Inc()
		failSpan(span, ErrImportTooLarge)
		return nil, ErrImportTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		failSpan(span, err)
		return nil, apperror.ErrValidation.Wrap(err)
	}
	defer handle.Close()

	limit := s.importMaxBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, limit+1)); err != nil {
		failSpan(span, err)
		return nil, apperror.ErrValidation.Wrap(err)
	}
	if int64(buf.Len()) > limit {
		observability.TicketBatchesRejected().WithLabelValues("size").Inc()
		failSpan(span, ErrImportTooLarge)
		return nil, ErrImportTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("import.detected_mime", detected.String()))
	if !isCSV(detected) {
		observability.TicketBatchesRejected().WithLabelValues("type").Inc()
		failSpan(span, ErrImportType)
		return nil, ErrImportType
	}

	entries, err := ParseTicketCSV(buf.Bytes())
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return s.Issue(ctx, actor, activityID, "", entries)
}

func isCSV(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/csv") || m.Is("text/plain") {
			return true
		}
	}
	return false
}

// ParseTicketCSV converts CSV rows into ticket entries. Values are trimmed
// and type accepts either the numeric code or its name.
func ParseTicketCSV(data []byte) ([]dto.TicketEntry, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries []dto.TicketEntry
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, apperror.ErrValidation.Detail("line %d: %v", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "detailId") {
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		entry, err := parseTicketRecord(record)
		if err != nil {
			return nil, apperror.ErrValidation.Detail("line %d: %v", line, err)
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, apperror.ErrValidation.Detail("ticket import contains no rows")
	}
	return entries, nil
}

func parseTicketRecord(record []string) (dto.TicketEntry, error) {
	if len(record) < 4 || len(record) > 5 {
		return dto.TicketEntry{}, errors.New("expected detailId,student,type,points[,date]")
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	ticketType, err := parseTicketType(record[2])
	if err != nil {
		return dto.TicketEntry{}, err
	}
	points, err := strconv.Atoi(record[3])
	if err != nil {
		return dto.TicketEntry{}, errors.New("points must be an integer")
	}

	entry := dto.TicketEntry{
		DetailID: record[0],
		Student:  record[1],
		Type:     ticketType,
		Points:   points,
	}
	if len(record) == 5 {
		entry.Date = record[4]
	}
	return entry, nil
}

func parseTicketType(value string) (models.TicketType, error) {
	switch strings.ToLower(value) {
	case "0", "daily":
		return models.TicketDaily, nil
	case "1", "personality":
		return models.TicketPersonality, nil
	}
	return 0, errors.New("type must be daily or personality")
}
