// Package export publishes per-period dataset summaries to spreadsheets.
package export

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"github.com/mtlprog/nftdash/internal/domain"
)

// Sheet names.
const (
	SummarySheet = "DATASETS"
	HistorySheet = "HISTORY"
)

// Row is the record count of one dataset for one period.
type Row struct {
	Dataset string
	Period  domain.Period
	Count   int
	Stale   bool
}

// Report is one export run.
type Report struct {
	GeneratedAt time.Time
	Datasets    []string
	Rows        []Row
}

// Source serves period-filtered datasets.
type Source interface {
	Datasets() []string
	Get(ctx context.Context, name string, p domain.Period, force bool) (domain.Envelope, error)
}

// SheetWriter writes a report to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, report Report) error
}

// Service builds reports and delegates writing to a SheetWriter.
type Service struct {
	source Source
	writer SheetWriter
	clock  clockwork.Clock
}

// NewService creates a new export Service.
func NewService(source Source, writer SheetWriter, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{source: source, writer: writer, clock: clock}
}

// Export summarises every dataset for every period and writes the report.
// Implements worker.AfterRefreshHook.
func (s *Service) Export(ctx context.Context) error {
	report, err := s.Build(ctx)
	if err != nil {
		return err
	}
	return s.writer.Write(ctx, report)
}

// Build assembles the report without writing it. Datasets that cannot be served are
// left out with a warning.
func (s *Service) Build(ctx context.Context) (Report, error) {
	report := Report{GeneratedAt: s.clock.Now().UTC()}

	for _, name := range s.source.Datasets() {
		rows := make([]Row, 0, len(domain.Periods))
		var failed error
		for _, p := range domain.Periods {
			env, err := s.source.Get(ctx, name, p, false)
			if err != nil {
				failed = err
				break
			}
			stale, _ := env[domain.FieldFromExpiredCache].(bool)
			rows = append(rows, Row{Dataset: name, Period: p, Count: env.RecordCount(), Stale: stale})
		}
		if failed != nil {
			slog.Warn("export: dataset unavailable", "dataset", name, "error", failed)
			continue
		}
		report.Datasets = append(report.Datasets, name)
		report.Rows = append(report.Rows, rows...)
	}

	if len(report.Rows) == 0 {
		return Report{}, errors.New("no datasets available for export")
	}
	return report, nil
}

// buildSummary pivots the report into one row per dataset.
// Columns: Dataset | 24h | 7d | 30d | all | Stale
func buildSummary(report Report) [][]any {
	header := []any{"Dataset"}
	for _, p := range domain.Periods {
		header = append(header, string(p))
	}
	header = append(header, "Stale")

	data := make([][]any, 0, len(report.Datasets)+1)
	data = append(data, header)

	byDataset := lo.GroupBy(report.Rows, func(r Row) string { return r.Dataset })
	for _, name := range report.Datasets {
		counts := lo.KeyBy(byDataset[name], func(r Row) domain.Period { return r.Period })
		row := []any{name}
		for _, p := range domain.Periods {
			row = append(row, counts[p].Count)
		}
		stale := lo.SomeBy(byDataset[name], func(r Row) bool { return r.Stale })
		row = append(row, lo.Ternary(stale, "yes", ""))
		data = append(data, row)
	}

	return data
}

// buildHistory returns the HISTORY header and one row with the run's 24h counts.
func buildHistory(report Report) (header, row []any) {
	header = []any{"Date"}
	row = []any{report.GeneratedAt.Format("02.01.2006 15:04")}

	counts := lo.KeyBy(
		lo.Filter(report.Rows, func(r Row, _ int) bool { return r.Period == domain.Period24h }),
		func(r Row) string { return r.Dataset },
	)
	for _, name := range report.Datasets {
		header = append(header, name)
		row = append(row, counts[name].Count)
	}
	return header, row
}
