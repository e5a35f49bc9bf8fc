package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"club-ledger/internal/client"
	"club-ledger/internal/models"
	"club-ledger/internal/repository/scylla"
	"club-ledger/internal/util"
)

// DuesSink receives best-effort analytics snapshots of dues writes. Losing a
// snapshot never fails the domain operation.
type DuesSink interface {
	RecordSnapshot(ctx context.Context, username string, paid []int) error
}

// PaymentRequest is the payload a client turns into a Venmo deep link.
type PaymentRequest struct {
	Venmo  string `json:"venmo"`
	Amount int    `json:"amount"`
	Note   string `json:"note"`
}

// ExportError reports a failed CSV export with the destination path attached.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("dues export to %s failed: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// SelectedTotal sums the outstanding balance across the selected months.
// A month whose paid amount meets or exceeds the fee contributes nothing;
// overpayment in one month never offsets another.
func SelectedTotal(fields []int, fee int, months []int) int {
	fields = models.PadMonths(fields)
	total := 0
	for _, m := range months {
		if m < 0 || m >= models.MonthsPerYear {
			continue
		}
		if d := fee - fields[m]; d > 0 {
			total += d
		}
	}
	return total
}

// DueTotal computes what the member owes through asOfMonth months of the
// year: the aggregate expected amount minus the aggregate paid, floored at
// zero. Unlike SelectedTotal this is a single aggregate, so an overpaid
// January does cover a short February.
func DueTotal(fields []int, fee int, asOfMonth int) int {
	fields = models.PadMonths(fields)
	if asOfMonth < 0 {
		asOfMonth = 0
	}
	if asOfMonth > models.MonthsPerYear {
		asOfMonth = models.MonthsPerYear
	}
	paid := 0
	for m := 0; m < asOfMonth; m++ {
		paid += fields[m]
	}
	total := asOfMonth*fee - paid
	if total < 0 {
		total = 0
	}
	return total
}

// BuildPaymentNote renders the month selection for a payment note. Exactly
// three contiguous months collapse to a dash range; up to three months are
// comma-joined; anything longer shows the first two and a remainder count.
func BuildPaymentNote(months []int) string {
	sel := make([]int, 0, len(months))
	for _, m := range months {
		if m >= 0 && m < models.MonthsPerYear {
			sel = append(sel, m)
		}
	}
	if len(sel) == 0 {
		return ""
	}
	sort.Ints(sel)

	names := make([]string, len(sel))
	for i, m := range sel {
		names[i] = models.MonthNames[m]
	}

	n := len(sel)
	switch {
	case n == 3 && sel[2]-sel[0] == 2:
		return names[0] + "–" + names[2]
	case n <= 3:
		return strings.Join(names, ", ")
	default:
		return fmt.Sprintf("%s, %s … +%d more", names[0], names[1], n-2)
	}
}

// BuildPaymentRequest pairs the payee handle with the outstanding amount for
// the selected months and a human-readable note.
func BuildPaymentRequest(venmo string, fields []int, fee int, months []int) PaymentRequest {
	return PaymentRequest{
		Venmo:  venmo,
		Amount: SelectedTotal(fields, fee, months),
		Note:   BuildPaymentNote(months),
	}
}

// WriteCSV renders the dues matrix: one column per member in the given order,
// one row per month. Member names are quoted by the csv writer, so commas in
// names survive round trips.
func WriteCSV(w io.Writer, members []*models.Member, fields map[string][]int) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(members)+1)
	header = append(header, "")
	for _, m := range members {
		header = append(header, m.FullName())
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for month := 0; month < models.MonthsPerYear; month++ {
		row := make([]string, 0, len(members)+1)
		row = append(row, models.MonthNames[month])
		for _, m := range members {
			paid := fields[m.Username]
			v := 0
			if month < len(paid) {
				v = paid[month]
			}
			row = append(row, strconv.Itoa(v))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// DuesService owns the monthly ledger: reads, writes, totals, payment
// requests, and the roster CSV export.
type DuesService struct {
	members    scylla.MemberRepository
	management scylla.ManagementRepository
	dues       scylla.DuesRepository
	events     EventPublisher
	sink       DuesSink
	locks      *rowLocks
}

func NewDuesService(
	members scylla.MemberRepository,
	management scylla.ManagementRepository,
	dues scylla.DuesRepository,
	events EventPublisher,
	sink DuesSink,
) *DuesService {
	return &DuesService{
		members:    members,
		management: management,
		dues:       dues,
		events:     events,
		sink:       sink,
		locks:      newRowLocks(),
	}
}

// GetMonthlyFields returns the member's 12 paid cells. Unknown usernames read
// as an all-zero year; the dues view renders before any payment exists.
func (s *DuesService) GetMonthlyFields(ctx context.Context, username string) ([]int, error) {
	username, ok := util.NormalizeUsername(username)
	if !ok {
		return nil, fmt.Errorf("%w: username", ErrValidation)
	}
	return s.dues.GetMonthlyFields(ctx, username)
}

// SetMonthlyFields overwrites the member's paid cells. Values are padded to
// 12; negative amounts are rejected.
func (s *DuesService) SetMonthlyFields(ctx context.Context, username string, values []int, actor string) error {
	username, ok := util.NormalizeUsername(username)
	if !ok {
		return fmt.Errorf("%w: username", ErrValidation)
	}
	if len(values) > models.MonthsPerYear {
		return fmt.Errorf("%w: at most %d monthly cells", ErrValidation, models.MonthsPerYear)
	}
	for _, v := range values {
		if v < 0 {
			return fmt.Errorf("%w: paid amounts cannot be negative", ErrValidation)
		}
	}

	mu := s.locks.lock("dues:" + username)
	defer mu.Unlock()

	padded := models.PadMonths(values)
	if err := s.dues.SetMonthlyFields(ctx, username, padded); err != nil {
		return err
	}

	s.publish(ctx, &client.ClubEvent{
		Type:     client.EventDuesRecorded,
		Username: username,
		Actor:    actor,
		Detail:   map[string]interface{}{"paid": padded},
	})

	if s.sink != nil {
		if err := s.sink.RecordSnapshot(ctx, username, padded); err != nil {
			util.Warn("Failed to record dues snapshot",
				zap.String("username", username),
				zap.Error(err))
		}
	}

	return nil
}

// SelectedTotalFor computes the outstanding balance for the given months at
// the current club fee.
func (s *DuesService) SelectedTotalFor(ctx context.Context, username string, months []int) (int, error) {
	fields, err := s.GetMonthlyFields(ctx, username)
	if err != nil {
		return 0, err
	}
	cfg, err := s.management.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	return SelectedTotal(fields, cfg.Fee, months), nil
}

// DueTotalFor computes the member's aggregate shortfall through asOfMonth.
func (s *DuesService) DueTotalFor(ctx context.Context, username string, asOfMonth int) (int, error) {
	fields, err := s.GetMonthlyFields(ctx, username)
	if err != nil {
		return 0, err
	}
	cfg, err := s.management.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	return DueTotal(fields, cfg.Fee, asOfMonth), nil
}

// PaymentRequestFor builds a Venmo payment request for the selected months.
func (s *DuesService) PaymentRequestFor(ctx context.Context, username string, months []int) (*PaymentRequest, error) {
	fields, err := s.GetMonthlyFields(ctx, username)
	if err != nil {
		return nil, err
	}
	cfg, err := s.management.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	req := BuildPaymentRequest(cfg.Venmo, fields, cfg.Fee, months)
	return &req, nil
}

// ExportRosterCSV streams the full dues matrix for the synced roster, members
// ordered by their manual order index.
func (s *DuesService) ExportRosterCSV(ctx context.Context, w io.Writer) error {
	all, err := s.members.ListMembers(ctx)
	if err != nil {
		return err
	}

	roster := make([]*models.Member, 0, len(all))
	for _, m := range all {
		if m.Syncd == 1 {
			roster = append(roster, m)
		}
	}
	sort.SliceStable(roster, func(i, j int) bool {
		return roster[i].OrderIndex < roster[j].OrderIndex
	})

	var mu sync.Mutex
	fields := make(map[string][]int, len(roster))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, m := range roster {
		m := m
		g.Go(func() error {
			paid, err := s.dues.GetMonthlyFields(gctx, m.Username)
			if err != nil {
				return err
			}
			mu.Lock()
			fields[m.Username] = paid
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return WriteCSV(w, roster, fields)
}

// WriteCSVFile exports the roster matrix to path atomically: the file is
// written to a temp sibling and renamed into place, so readers never observe
// a partial export.
func (s *DuesService) WriteCSVFile(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dues-*.csv")
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if err := s.ExportRosterCSV(ctx, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &ExportError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &ExportError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &ExportError{Path: path, Err: err}
	}

	util.Info("Dues CSV exported", zap.String("path", path))
	return nil
}

func (s *DuesService) publish(ctx context.Context, event *client.ClubEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := s.events.PublishEvent(ctx, event); err != nil {
		util.Warn("Failed to publish club event",
			zap.String("type", event.Type),
			zap.Error(err))
	}
}
