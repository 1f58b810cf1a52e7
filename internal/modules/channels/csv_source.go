package channels

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/climate-finance/engine/internal/domain"
)

// CSVSource reads the channel mapping CSV. The header must contain
// channel_code and channel_name; en_acronym and fr_acronym are optional.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source for a mapping file
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// LoadChannels reads every row of the mapping file
func (s *CSVSource) LoadChannels(_ context.Context) ([]Entity, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel mapping %s: %w", s.path, err)
	}
	defer f.Close()

	entities, err := ReadEntities(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel mapping %s: %w", s.path, err)
	}
	return entities, nil
}

// ReadEntities parses channel mapping CSV content
func ReadEntities(r io.Reader) ([]Entity, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	codeCol, ok := columns["channel_code"]
	if !ok {
		return nil, errors.New("missing channel_code column")
	}
	nameCol, ok := columns["channel_name"]
	if !ok {
		return nil, errors.New("missing channel_name column")
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		v := strings.TrimSpace(record[i])
		if strings.EqualFold(v, "nan") {
			return ""
		}
		return v
	}

	var entities []Entity
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if codeCol >= len(record) || nameCol >= len(record) {
			continue
		}
		code := domain.NormaliseCode(record[codeCol])
		name := strings.TrimSpace(record[nameCol])
		if code == "" || name == "" {
			continue
		}
		entities = append(entities, Entity{
			Code:      code,
			Name:      name,
			EnAcronym: field(record, "en_acronym"),
			FrAcronym: field(record, "fr_acronym"),
		})
	}
	return entities, nil
}
