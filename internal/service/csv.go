package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

var ErrEmptyUpload = errors.New("uploaded file has no header row")

// ParseCSV reads an uploaded sheet into a Table. Headers are trimmed, every
// cell is kept as a string, and short rows are padded with empty strings.
func ParseCSV(r io.Reader) (model.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return model.Table{}, ErrEmptyUpload
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := model.Table{Headers: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Table{}, fmt.Errorf("read csv row %d: %w", len(table.Rows)+2, err)
		}
		if isBlank(record) {
			continue
		}
		row := make(model.Attributes, 0, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			var cell string
			if i < len(record) {
				cell = record[i]
			}
			row = append(row, model.Attribute{Name: name, Value: model.String(cell)})
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// WriteResultsCSV writes one line per delivery result, aligned with the
// campaign's recipients.
func WriteResultsCSV(w io.Writer, c *model.Campaign) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Email", "Status", "Timestamp", "Error"}); err != nil {
		return err
	}
	for i, r := range c.Recipients {
		line := []string{r.Email, "Pending", "", ""}
		if i < len(c.SendResults) {
			res := c.SendResults[i]
			line[1] = res.Status()
			line[2] = res.Timestamp.UTC().Format(time.RFC3339)
			if res.Error != nil {
				line[3] = *res.Error
			}
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
