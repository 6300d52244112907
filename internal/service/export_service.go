package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wigshare/wigshare-api/internal/models"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
	"github.com/wigshare/wigshare-api/pkg/export"
)

type donationExportSource interface {
	GetByID(ctx context.Context, id int64) (*models.Donation, error)
	List(ctx context.Context, filter models.DonationFilter) ([]models.Donation, int, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type exportSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       string
	ExpiresAt    time.Time
}

// ExportService renders donation records into downloadable files: a CSV
// history for institutions and a PDF receipt per donation.
type ExportService struct {
	donations donationExportSource
	storage   exportStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    exportSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(donations donationExportSource, storage exportStorage, signer exportSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		donations: donations,
		storage:   storage,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// HistoryCSV renders the calling institution's donation history. Admins
// may export any institution's history via the filter.
func (s *ExportService) HistoryCSV(ctx context.Context, actor *models.JWTClaims, filter models.DonationFilter) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleInstitution:
		filter.InstitutionID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}

	donations, _, err := s.donations.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list donations")
	}

	dataset := donationDataset(donations)
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("donations_%s.csv", time.Now().UTC().Format("20060102_150405"))
	return s.store(filename, "history", "csv", payload)
}

// ReceiptPDF renders a single donation receipt for its institution.
func (s *ExportService) ReceiptPDF(ctx context.Context, donationID int64, actor *models.JWTClaims) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	donation, err := s.donations.GetByID(ctx, donationID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "donation not found")
	}
	if !CanAct(actor.UserID, actor.Role, donation.InstitutionID) {
		return nil, appErrors.ErrForbidden
	}

	dataset := donationDataset([]models.Donation{*donation})
	title := fmt.Sprintf("Donation Receipt #%d", donation.ID)
	payload, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}

	filename := fmt.Sprintf("receipt_%d_%s.pdf", donation.ID, time.Now().UTC().Format("20060102_150405"))
	return s.store(filename, fmt.Sprintf("%d", donation.ID), "pdf", payload)
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string) (relPath string, err error) {
	_, relPath, _, err = s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	return relPath, nil
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

func (s *ExportService) store(filename, resourceID, format string, payload []byte) (*ExportResult, error) {
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(resourceID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

func donationDataset(donations []models.Donation) export.Dataset {
	rows := make([]map[string]string, 0, len(donations))
	for _, d := range donations {
		rows = append(rows, map[string]string{
			"Donation ID":    fmt.Sprintf("%d", d.ID),
			"Wig ID":         fmt.Sprintf("%d", d.WigID),
			"Request ID":     fmt.Sprintf("%d", d.RequestID),
			"Institution ID": d.InstitutionID,
			"Note":           d.Note,
			"Donated At":     d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Headers: []string{"Donation ID", "Wig ID", "Request ID", "Institution ID", "Note", "Donated At"},
		Rows:    rows,
	}
}
