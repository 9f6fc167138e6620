// Package export renders participant statuses as semicolon separated CSV.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rostertrack/rostertrack/internal/status"
)

const (
	// TimeLayout is the timestamp format of the Joined and Left columns, in UTC
	TimeLayout = "2006-01-02 15:04:05"

	// Delimiter separates the columns
	Delimiter = ';'

	// ContentType is the media type of the export
	ContentType = "text/csv; charset=utf-8"
)

// Header is the first row of every export
var Header = []string{"ID", "Name", "Status", "Joined", "Left"}

// WriteCSV writes one row per participant after the header. Absent
// timestamps are written as empty cells.
func WriteCSV(w io.Writer, participants []*status.ParticipantStatus) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range participants {
		if err := cw.Write(toRecord(p)); err != nil {
			return fmt.Errorf("failed to write CSV row for participant %s: %w", p.ParticipantID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ParseCSV reads an export produced by WriteCSV. The tournament ID is not
// part of the export and is left empty.
func ParseCSV(r io.Reader) ([]*status.ParticipantStatus, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing CSV header")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected CSV header %v", header)
	}

	var participants []*status.ParticipantStatus
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		p, err := fromRecord(record)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		participants = append(participants, p)
	}

	return participants, nil
}

func toRecord(p *status.ParticipantStatus) []string {
	return []string{
		p.ParticipantID,
		p.DisplayName,
		string(p.Status),
		formatTime(&p.JoinedAt),
		formatTime(p.LeftAt),
	}
}

func fromRecord(record []string) (*status.ParticipantStatus, error) {
	p := &status.ParticipantStatus{
		ParticipantID: record[0],
		DisplayName:   record[1],
		Status:        status.ParticipantState(record[2]),
	}

	switch p.Status {
	case status.StateActive, status.StateLeft:
	default:
		return nil, fmt.Errorf("unknown status %q", record[2])
	}

	joined, err := parseTime(record[3])
	if err != nil {
		return nil, fmt.Errorf("invalid joined time: %w", err)
	}
	if joined != nil {
		p.JoinedAt = *joined
	}

	if p.LeftAt, err = parseTime(record[4]); err != nil {
		return nil, fmt.Errorf("invalid left time: %w", err)
	}

	return p, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
