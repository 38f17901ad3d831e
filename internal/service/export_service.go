package service

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered roster sheet.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the working set as a printable roster sheet.
type ExportService struct {
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, logger: logger}
}

// Render builds the sheet for view in the requested format (csv by default).
func (s *ExportService) Render(view *models.WorkingSetView, format string) (*ExportFile, error) {
	if view == nil {
		return nil, appErrors.ErrNoSelection
	}
	if format == "" {
		format = ExportFormatCSV
	}

	dataset, title := buildRosterDataset(view)
	var (
		payload     []byte
		contentType string
		err         error
	)
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset, title)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
	if err != nil {
		s.logger.Error("failed to render roster sheet", zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster sheet")
	}

	filename := fmt.Sprintf("%s_%s_%s.%s", view.Workflow, sanitizeFilename(view.CourseOfferingID), view.Date, format)
	return &ExportFile{Filename: filename, ContentType: contentType, Data: payload}, nil
}

func buildRosterDataset(view *models.WorkingSetView) (export.Dataset, string) {
	valueHeader := "Status"
	if view.Workflow == models.WorkflowGrades {
		valueHeader = "Grade"
	}
	headers := []string{"Name", "Number", valueHeader, "Notes"}
	if view.Workflow == models.WorkflowGrades {
		headers = append(headers, "Attendance")
	}

	rows := make([]map[string]string, 0, len(view.Records))
	for _, rec := range view.Records {
		name := rec.Name
		if name == "" {
			name = rec.EntityID
		}
		row := map[string]string{
			"Name":      name,
			"Number":    rec.ExternalNumber,
			valueHeader: rec.Value.String(),
			"Notes":     rec.Notes,
		}
		if view.Workflow == models.WorkflowGrades {
			row["Attendance"] = string(rec.Prerequisite)
		}
		rows = append(rows, row)
	}

	label := string(view.Workflow)
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	title := fmt.Sprintf("%s %s %s", label, view.CourseOfferingID, view.Date)
	return export.Dataset{Headers: headers, Rows: rows}, title
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
