package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/records"
)

// Format selects the export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a request parameter to a Format; empty defaults to CSV.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// FileName builds a download file name for a module export.
func (f Format) FileName(moduleName string) string {
	return fmt.Sprintf("%s-export.%s", sanitizeFileComponent(moduleName), f)
}

// Service streams a module's records into tabular files. Columns follow the
// active schema's field order, with status prepended.
type Service struct {
	records  *records.Service
	pageSize int
}

// NewService creates an export service over the record facade.
func NewService(recordService *records.Service, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Service{records: recordService, pageSize: pageSize}
}

// Export writes every record of the module to w in the given format. The
// schema resolves through the facade, so tenant scoping and module lifecycle
// rules apply unchanged.
func (s *Service) Export(ctx context.Context, actor auth.Actor, moduleName string, filter *domain.RecordFilter, format Format, w io.Writer) error {
	config, err := s.records.ResolveModule(ctx, actor, moduleName)
	if err != nil {
		return fmt.Errorf("resolve module %s: %w", moduleName, err)
	}

	headers := make([]string, 0, len(config.Fields)+1)
	headers = append(headers, "status")
	for _, field := range config.Fields {
		headers = append(headers, field.Name)
	}

	switch format {
	case FormatXLSX:
		return s.exportXLSX(ctx, actor, moduleName, filter, headers, w)
	default:
		return s.exportCSV(ctx, actor, moduleName, filter, headers, w)
	}
}

func (s *Service) exportCSV(ctx context.Context, actor auth.Actor, moduleName string, filter *domain.RecordFilter, headers []string, w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(headers))
	err := s.eachRecord(ctx, actor, moduleName, filter, func(record domain.Record) error {
		fillRow(row, headers, record)
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("write record row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}

func (s *Service) exportXLSX(ctx context.Context, actor auth.Actor, moduleName string, filter *domain.RecordFilter, headers []string, w io.Writer) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	headerCells := make([]any, len(headers))
	for i, header := range headers {
		headerCells[i] = header
	}
	if err := writeSheetRow(file, sheet, 1, headerCells); err != nil {
		return err
	}

	rowIndex := 2
	row := make([]string, len(headers))
	err := s.eachRecord(ctx, actor, moduleName, filter, func(record domain.Record) error {
		fillRow(row, headers, record)
		cells := make([]any, len(row))
		for i, value := range row {
			cells[i] = value
		}
		if err := writeSheetRow(file, sheet, rowIndex, cells); err != nil {
			return err
		}
		rowIndex++
		return nil
	})
	if err != nil {
		return err
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// eachRecord pages through the module's records in stable order and calls fn
// for each one.
func (s *Service) eachRecord(ctx context.Context, actor auth.Actor, moduleName string, filter *domain.RecordFilter, fn func(domain.Record) error) error {
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		page, _, err := s.records.List(ctx, actor, moduleName, filter, s.pageSize, offset)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		for _, record := range page {
			if err := fn(record); err != nil {
				return err
			}
		}
		if len(page) < s.pageSize {
			return nil
		}
		offset += s.pageSize
	}
}

func writeSheetRow(file *excelize.File, sheet string, rowIndex int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIndex)
	if err != nil {
		return fmt.Errorf("build cell reference: %w", err)
	}
	if err := file.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write sheet row %d: %w", rowIndex, err)
	}
	return nil
}

func fillRow(row, headers []string, record domain.Record) {
	for i, header := range headers {
		if header == "status" {
			row[i] = record.Status
			continue
		}
		row[i] = formatCell(record.Data[header])
	}
}

func formatCell(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}
