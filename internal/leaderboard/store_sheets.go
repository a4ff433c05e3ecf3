package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/victornm/trivia/internal/domain"
)

type SheetsConfig struct {
	SpreadsheetID string
	Sheet         string
	Location      *time.Location
	Options       []option.ClientOption
}

// SheetsStore keeps the leaderboard in a Google spreadsheet: a header row
// followed by one row per entry.
type SheetsStore struct {
	values   *sheets.SpreadsheetsValuesService
	id       string
	sheet    string
	location *time.Location
}

func NewSheetsStore(ctx context.Context, c SheetsConfig) (*SheetsStore, error) {
	srv, err := sheets.NewService(ctx, c.Options...)
	if err != nil {
		return nil, fmt.Errorf("sheets store: new service: %w", err)
	}

	s := &SheetsStore{
		values:   srv.Spreadsheets.Values,
		id:       c.SpreadsheetID,
		sheet:    c.Sheet,
		location: c.Location,
	}

	if s.sheet == "" {
		s.sheet = "Sheet1"
	}
	if s.location == nil {
		s.location = time.Local
	}

	return s, nil
}

func (s *SheetsStore) ReadAll(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	vr, err := s.values.Get(s.id, s.sheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets store: get: %w", err)
	}

	if len(vr.Values) == 0 {
		return nil, nil
	}

	header := make([]string, len(vr.Values[0]))
	for i, v := range vr.Values[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(v))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(vr.Values)-1)
	for i, cells := range vr.Values[1:] {
		row := make(Row, len(header))
		for j, v := range cells {
			if j < len(header) {
				row[header[j]] = fmt.Sprint(v)
			}
		}

		e, err := DecodeRow(row, s.location)
		if err != nil {
			return nil, fmt.Errorf("sheets store: row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// ReplaceAll clears the sheet, then writes the header and every entry.
func (s *SheetsStore) ReplaceAll(ctx context.Context, entries []domain.LeaderboardEntry) error {
	values := make([][]any, 0, len(entries)+1)
	values = append(values, toCells(Headers))
	for _, e := range entries {
		values = append(values, toCells(EncodeRow(e, s.location).Values()))
	}

	if _, err := s.values.Clear(s.id, s.sheet, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets store: clear: %w", err)
	}

	_, err := s.values.Update(s.id, s.sheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets store: update: %w", err)
	}

	return nil
}

func toCells(vs []string) []any {
	cells := make([]any, len(vs))
	for i, v := range vs {
		cells[i] = v
	}
	return cells
}
