package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
	"github.com/labsphere/labsphere-api/pkg/export"
	"github.com/labsphere/labsphere-api/pkg/storage"
	"github.com/labsphere/labsphere-api/pkg/timeslot"
)

type rosterReader interface {
	ListDetailByClass(ctx context.Context, classID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error)
}

type timetableReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.TimetableSlot, error)
}

type fileStore interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	Sweep(ttl time.Duration) ([]string, error)
}

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes plus the content type to serve them.
type ExportResult struct {
	ContentType string
	Filename    string
	Data        []byte
}

// ExportArtifact describes a rendered file persisted to the store.
type ExportArtifact struct {
	Name      string
	Token     string
	URL       string
	ExpiresAt time.Time
}

// ExportConfig tunes stored export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders class rosters and timetables as CSV or PDF. When a
// file store and signer are configured it can also persist rendered files
// for background jobs and mint signed download links for them.
type ExportService struct {
	enrollments rosterReader
	timetables  timetableReader
	classes     classReader
	store       fileStore
	signer      *storage.DownloadSigner
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	cfg         ExportConfig
	logger      *zap.Logger
}

// NewExportService instantiates ExportService. store and signer may be nil
// when only synchronous exports are served.
func NewExportService(enrollments rosterReader, timetables timetableReader, classes classReader, store fileStore, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		enrollments: enrollments,
		timetables:  timetables,
		classes:     classes,
		store:       store,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cfg:         cfg,
		logger:      logger,
	}
}

// Roster exports a class's active enrollments with group and seat columns.
func (s *ExportService) Roster(ctx context.Context, classID string, format ExportFormat) (*ExportResult, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	details, err := s.enrollments.ListDetailByClass(ctx, classID, models.EnrollmentStatusActive)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Email", "Group", "Seat", "Joined"},
	}
	for _, d := range details {
		group := ""
		if d.GroupName != nil {
			group = *d.GroupName
		}
		dataset.Rows = append(dataset.Rows, []string{
			d.StudentName,
			d.StudentEmail,
			group,
			d.SeatLabel,
			d.JoinedAt.Format("2006-01-02"),
		})
	}

	title := fmt.Sprintf("Roster - %s (%s)", class.Name, class.Code)
	return s.render(dataset, title, fmt.Sprintf("roster-%s", class.Code), format)
}

// Timetable exports a class's weekly recurring slots.
func (s *ExportService) Timetable(ctx context.Context, classID string, format ExportFormat) (*ExportResult, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	slots, err := s.timetables.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	dataset := export.Dataset{
		Headers: []string{"Day", "Start", "End", "Active"},
	}
	for _, slot := range slots {
		dataset.Rows = append(dataset.Rows, []string{
			timeslot.DayName(slot.DayOfWeek),
			slot.StartTime,
			slot.EndTime,
			fmt.Sprintf("%t", slot.Active),
		})
	}

	title := fmt.Sprintf("Timetable - %s (%s)", class.Name, class.Code)
	return s.render(dataset, title, fmt.Sprintf("timetable-%s", class.Code), format)
}

// Generate renders an export job's dataset, persists the file, and returns
// a signed download link for it.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportArtifact, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage is not configured")
	}

	var result *ExportResult
	var err error
	switch job.Kind {
	case models.ExportKindRoster:
		result, err = s.Roster(ctx, job.ClassID, ExportFormat(job.Format))
	case models.ExportKindTimetable:
		result, err = s.Timetable(ctx, job.ClassID, ExportFormat(job.Format))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export kind")
	}
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s/%s", job.ID, result.Filename)
	relPath, err := s.store.Save(name, result.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export file")
	}

	token, expiresAt, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportArtifact{
		Name:      relPath,
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/download/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyToken validates a download token and returns the job ID and file
// name it references.
func (s *ExportService) VerifyToken(token string, allowExpired bool) (string, string, time.Time, error) {
	if s.signer == nil {
		return "", "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "export storage is not configured")
	}
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to a stored export file.
func (s *ExportService) Open(name string) (*os.File, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage is not configured")
	}
	return s.store.Open(name)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(name string) error {
	if s.store == nil {
		return nil
	}
	return s.store.Delete(name)
}

// Sweep drops stored files older than ttl, defaulting to the configured
// result TTL.
func (s *ExportService) Sweep(ttl time.Duration) ([]string, error) {
	if s.store == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.store.Sweep(ttl)
}

func (s *ExportService) render(dataset export.Dataset, title, basename string, format ExportFormat) (*ExportResult, error) {
	switch format {
	case FormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{ContentType: "text/csv", Filename: basename + ".csv", Data: data}, nil
	case FormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{ContentType: "application/pdf", Filename: basename + ".pdf", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
