package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/expense-report/internal/duplicate"
	"github.com/zombor/expense-report/internal/report"
	"github.com/zombor/expense-report/internal/scanning"
	"github.com/zombor/expense-report/internal/settings"
)

// ManualEntryMerchant is the merchant placeholder when extraction fails
const ManualEntryMerchant = "Manual Entry"

// IDGenerator generates unique IDs for expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options configures the generated reports
type Options struct {
	Recipient    string // mail draft recipient
	Currency     string
	ProgramLabel string
}

// Upload is one file received for scanning
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string
}

// Service handles the scan, review, accept and report workflow
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	settings    settings.Repository
	renderer    *report.Renderer
	options     Options
	idGenerator IDGenerator
	timeSource  TimeSource

	scanBusy atomic.Bool
}

// NewService creates a new Service with default ID generator, time source and renderer
func NewService(db DB, scanner scanning.Scanner, storage Storage, repo settings.Repository, opts Options) *Service {
	return NewServiceWithDeps(db, scanner, storage, repo, opts, report.NewRenderer(), &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, repo settings.Repository, opts Options, renderer *report.Renderer, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		settings:    repo,
		renderer:    renderer,
		options:     opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phone cameras produce very long names
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// Scan stores the uploaded pages of one receipt, extracts its fields and returns
// a draft for review. Nothing is added to the expense list.
func (s *Service) Scan(ctx context.Context, uploads []Upload) (*Draft, error) {
	if !s.scanBusy.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.scanBusy.Store(false)

	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no file provided", ErrInvalidExpense)
	}

	id := s.idGenerator.Generate()
	attachments := make([]Attachment, 0, len(uploads))
	pages := make([]scanning.Page, 0, len(uploads))
	for i, u := range uploads {
		name := fmt.Sprintf("%s_%d_%s", id, i+1, sanitizeFilename(u.Filename))
		saved, err := s.storage.Save(name, u.Data)
		if err != nil {
			s.discardFiles(attachments)
			return nil, fmt.Errorf("saving file: %w", err)
		}
		attachments = append(attachments, Attachment{Filename: saved, Name: u.Filename, ContentType: u.ContentType})
		pages = append(pages, scanning.Page{Data: u.Data, ContentType: u.ContentType})
	}
	if err := s.db.AddPending(filenames(attachments)); err != nil {
		s.discardFiles(attachments)
		return nil, fmt.Errorf("recording pending files: %w", err)
	}

	extraction := scanning.Extract(ctx, s.scanner, pages)
	draft := s.draftFrom(extraction)
	draft.Attachments = attachments

	// Manual-entry placeholders are not evidence of a duplicate
	if draft.Extracted {
		dup, err := s.isDuplicate(draft.Input)
		if err != nil {
			slog.Warn("Duplicate check failed", "error", err)
		}
		draft.Duplicate = dup
	}

	slog.Info("Scanned receipt",
		"pages", len(pages),
		"extracted", draft.Extracted,
		"duplicate", draft.Duplicate,
	)
	return draft, nil
}

// draftFrom fills a reviewable draft, falling back to manual-entry defaults
func (s *Service) draftFrom(e scanning.Extraction) *Draft {
	today := s.timeSource.Now().Format(DateLayout)
	if !e.OK() {
		return &Draft{
			Input: Input{
				Date:         today,
				MerchantName: ManualEntryMerchant,
				Category:     string(CategoryOther),
				Amount:       report.FormatAmount(0),
			},
			Notice: "Automatic extraction failed (" + e.Reason + "). Please enter the details manually.",
		}
	}

	data := e.Data
	in := Input{
		Date:           data.Date,
		MerchantName:   strings.TrimSpace(data.MerchantName),
		Category:       string(ParseCategory(data.Category)),
		DocumentNumber: strings.TrimSpace(data.DocumentNumber),
	}
	if in.Date == "" {
		in.Date = today
	}
	if data.TotalAmount != nil {
		in.Amount = report.FormatAmount(AmountFromFloat(*data.TotalAmount))
	}
	return &Draft{Input: in, Extracted: true}
}

// Discard deletes the files of a draft the user rejected.
// Only uploads still waiting for review are deleted; anything else is left alone.
func (s *Service) Discard(attachments []Attachment) error {
	removed, err := s.db.RemovePending(filenames(attachments))
	if err != nil {
		return fmt.Errorf("removing pending files: %w", err)
	}
	if skipped := len(attachments) - len(removed); skipped > 0 {
		slog.Warn("Ignoring files that are not pending uploads", "count", skipped)
	}
	pending := make([]Attachment, 0, len(removed))
	for _, name := range removed {
		pending = append(pending, Attachment{Filename: name})
	}
	s.discardFiles(pending)
	return nil
}

func filenames(attachments []Attachment) []string {
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Filename)
	}
	return names
}

func (s *Service) discardFiles(attachments []Attachment) {
	for _, a := range attachments {
		if err := s.storage.Delete(a.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", a.Filename, "error", err)
		}
	}
}

// CheckDuplicate reports whether in looks like an already accepted expense
func (s *Service) CheckDuplicate(in Input) (bool, error) {
	return s.isDuplicate(in)
}

func (s *Service) isDuplicate(in Input) (bool, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return false, fmt.Errorf("listing expenses: %w", err)
	}
	seen, err := s.db.DocumentNumbers()
	if err != nil {
		return false, fmt.Errorf("loading document numbers: %w", err)
	}
	records := make([]duplicate.Record, 0, len(expenses))
	for _, e := range expenses {
		records = append(records, e.record())
	}
	return duplicate.IsDuplicate(in.candidate(), records, seen), nil
}

// validate checks in and converts it to an expense without an ID
func validate(in Input) (*Expense, error) {
	date, err := time.Parse(DateLayout, strings.TrimSpace(in.Date))
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidExpense)
	}

	merchant := strings.TrimSpace(in.MerchantName)
	if merchant == "" {
		return nil, fmt.Errorf("%w: merchant name is required", ErrInvalidExpense)
	}

	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpense, err)
	}

	category := CategoryOther
	if strings.TrimSpace(in.Category) != "" {
		c, ok := LookupCategory(in.Category)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidExpense, in.Category)
		}
		category = c
	}

	for _, a := range in.Attachments {
		if !validName(a.Filename) {
			return nil, fmt.Errorf("%w: attachment %q", ErrInvalidExpense, a.Filename)
		}
	}

	return &Expense{
		Date:           date.Format(DateLayout),
		MerchantName:   merchant,
		Category:       category,
		Amount:         amount,
		DocumentNumber: strings.TrimSpace(in.DocumentNumber),
		Attachments:    append([]Attachment{}, in.Attachments...),
	}, nil
}

// AddExpense accepts a reviewed expense. A duplicate is still accepted; the
// returned expense carries the advisory flag.
func (s *Service) AddExpense(in Input) (*Expense, error) {
	expense, err := validate(in)
	if err != nil {
		return nil, err
	}

	dup, err := s.isDuplicate(in)
	if err != nil {
		return nil, err
	}

	expense.ID = s.idGenerator.Generate()
	expense.Duplicate = dup
	expense.CreatedAt = s.timeSource.Now()

	if err := s.db.InsertExpense(expense, duplicate.Normalize(expense.DocumentNumber)); err != nil {
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}
	return expense, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses in the order they were accepted
func (s *Service) ListExpenses() ([]*Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// GetAttachment returns the n-th (zero based) attachment of an expense
func (s *Service) GetAttachment(id string, n int) ([]byte, Attachment, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, Attachment{}, fmt.Errorf("getting expense: %w", err)
	}
	if n < 0 || n >= len(expense.Attachments) {
		return nil, Attachment{}, fmt.Errorf("%w: attachment %d of expense %s", ErrNotFound, n, id)
	}
	a := expense.Attachments[n]
	data, err := s.storage.Get(a.Filename)
	if err != nil {
		return nil, Attachment{}, fmt.Errorf("getting attachment file: %w", err)
	}
	return data, a, nil
}

// DeleteExpense removes an expense and its files
func (s *Service) DeleteExpense(id string) error {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	// File errors are logged; the record is removed regardless
	s.discardFiles(expense.Attachments)

	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// ClearExpenses removes every expense and its files
func (s *Service) ClearExpenses() error {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return fmt.Errorf("listing expenses: %w", err)
	}
	for _, e := range expenses {
		s.discardFiles(e.Attachments)
	}
	if err := s.db.ClearExpenses(); err != nil {
		return fmt.Errorf("clearing expenses: %w", err)
	}
	return nil
}

// GenerateReport renders every accepted expense into a PDF and a spreadsheet,
// stores both and advances the report counter.
func (s *Service) GenerateReport(ctx context.Context) (*ReportRecord, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	if len(expenses) == 0 {
		return nil, ErrNoExpenses
	}

	st, err := s.settings.Load()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	now := s.timeSource.Now()
	in := report.Input{
		Number: st.ReportCounter,
		Header: s.reportHeader(st, now),
	}
	ids := make([]string, 0, len(expenses))
	var missing []report.SkippedAttachment
	for _, e := range expenses {
		ids = append(ids, e.ID)
		in.Lines = append(in.Lines, e.line())
		for _, a := range e.Attachments {
			label := e.MerchantName
			if a.Name != "" {
				label += " (" + a.Name + ")"
			}
			data, err := s.storage.Get(a.Filename)
			if err != nil {
				slog.Warn("Skipping unreadable attachment", "expense", e.ID, "filename", a.Filename, "error", err)
				missing = append(missing, report.SkippedAttachment{Label: label, Error: err.Error()})
				continue
			}
			in.Attachments = append(in.Attachments, report.Attachment{Label: label, Data: data, ContentType: a.ContentType})
		}
	}

	doc, err := s.renderer.Render(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	sheet, err := report.WriteSpreadsheet(in)
	if err != nil {
		return nil, fmt.Errorf("writing spreadsheet: %w", err)
	}

	pdfFile, err := s.storage.Save(doc.Filename, doc.Bytes())
	if err != nil {
		return nil, fmt.Errorf("saving report pdf: %w", err)
	}
	xlsxFile, err := s.storage.Save(report.Filename(in.Number, "xlsx"), sheet)
	if err != nil {
		return nil, fmt.Errorf("saving report spreadsheet: %w", err)
	}

	mail := report.NewMailDraft(s.options.Recipient, in.Header, doc)
	rep := &ReportRecord{
		ID:              doc.ID,
		Number:          in.Number,
		Total:           doc.Total,
		Rows:            doc.Rows,
		Pages:           doc.PageCount(),
		AttachmentPages: doc.AttachmentPages,
		Breakdown:       doc.Breakdown,
		Skipped:         append(missing, doc.Skipped...),
		PDFFile:         pdfFile,
		XLSXFile:        xlsxFile,
		ExpenseIDs:      ids,
		Mail:            mail,
		MailTo:          mail.URL(),
		CreatedAt:       now,
	}
	if err := s.db.SaveReport(rep); err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}

	st.ReportCounter = in.Number + 1
	st.RememberProject()
	if err := s.settings.Save(st); err != nil {
		return nil, fmt.Errorf("advancing report counter: %w", err)
	}

	slog.Info("Generated report",
		"report", rep.ID,
		"rows", rep.Rows,
		"pages", rep.Pages,
		"total", report.FormatAmount(rep.Total),
		"skipped", len(rep.Skipped),
	)
	return rep, nil
}

func (s *Service) reportHeader(st *settings.Settings, now time.Time) report.Header {
	return report.Header{
		ProgramLabel:  s.options.ProgramLabel,
		ClaimantName:  st.ClaimantName,
		ClaimantEmail: st.ClaimantEmail,
		BankName:      st.BankName,
		IBAN:          st.IBAN,
		SWIFT:         st.SWIFT,
		AccountNumber: st.AccountNumber,
		Project:       st.Project,
		Destination:   st.Destination,
		Purpose:       st.Purpose,
		ReportDate:    now.Format(DateLayout),
		Currency:      s.options.Currency,
		GeneratedAt:   now,
	}
}

// GetReport retrieves report metadata by ID
func (s *Service) GetReport(id string) (*ReportRecord, error) {
	rep, err := s.db.GetReport(id)
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return rep, nil
}

// ListReports returns all generated reports
func (s *Service) ListReports() ([]*ReportRecord, error) {
	reports, err := s.db.ListReports()
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// Report file kinds
const (
	KindPDF  = "pdf"
	KindXLSX = "xlsx"
)

// GetReportFile returns a generated file with its content type and download name
func (s *Service) GetReportFile(id, kind string) ([]byte, string, string, error) {
	rep, err := s.db.GetReport(id)
	if err != nil {
		return nil, "", "", fmt.Errorf("getting report: %w", err)
	}

	var name, contentType string
	switch kind {
	case KindPDF:
		name, contentType = rep.PDFFile, "application/pdf"
	case KindXLSX:
		name, contentType = rep.XLSXFile, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return nil, "", "", fmt.Errorf("%w: report file kind %q", ErrNotFound, kind)
	}

	data, err := s.storage.Get(name)
	if err != nil {
		return nil, "", "", fmt.Errorf("getting report file: %w", err)
	}
	return data, contentType, name, nil
}

// GetSettings returns the persisted settings
func (s *Service) GetSettings() (*settings.Settings, error) {
	st, err := s.settings.Load()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return st, nil
}

// UpdateSettings replaces the persisted settings
func (s *Service) UpdateSettings(st *settings.Settings) (*settings.Settings, error) {
	if st == nil {
		return nil, errors.New("settings are required")
	}
	if err := s.settings.Save(st); err != nil {
		return nil, fmt.Errorf("saving settings: %w", err)
	}
	return st, nil
}
