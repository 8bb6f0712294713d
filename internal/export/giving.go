package export

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"shepherd/internal/analytics"
)

// envelopeFanOut bounds concurrent head-of-household lookups.
const envelopeFanOut = 8

// GivingHeader is the fixed column order of the giving export.
var GivingHeader = []string{
	"Household Name", "Envelope Number", "Member Name", "Date Given",
	"Current", "Mission", "Memorials", "Debt", "School", "Miscellaneous",
	"Total", "Notes",
}

// EnvelopeDirectory resolves everyone in a church who shares an envelope
// number.
type EnvelopeDirectory interface {
	MembersByEnvelope(ctx context.Context, churchID uuid.UUID, envelope string) ([]analytics.Person, error)
}

// GivingRow is one gift as it appears in the export.
type GivingRow struct {
	HouseholdName  string                 `json:"householdName"`
	EnvelopeNumber string                 `json:"envelopeNumber"`
	MemberName     string                 `json:"memberName"`
	DateGiven      analytics.CalendarDate `json:"dateGiven"`
	Amounts        analytics.Amounts      `json:"amounts"`
	Notes          string                 `json:"notes"`
}

// TotalOf sums every row's amounts.
func TotalOf(rows []GivingRow) analytics.Amounts {
	var sum analytics.Amounts
	for _, r := range rows {
		sum = sum.Add(r.Amounts)
	}
	return sum
}

// BuildGivingRows resolves display names for every gift in ds. Gifts on an
// envelope are credited to that envelope's head of household; lookups run
// concurrently, at most eight at a time, and are merged by envelope number.
func BuildGivingRows(ctx context.Context, dir EnvelopeDirectory, churchID uuid.UUID, ds analytics.GivingDataset) ([]GivingRow, error) {
	heads, err := resolveHeads(ctx, dir, churchID, envelopesOf(ds))
	if err != nil {
		return nil, err
	}

	rows := make([]GivingRow, 0, len(ds.Records))
	for _, rec := range ds.Records {
		member := ds.Members[rec.MemberID]
		row := GivingRow{
			EnvelopeNumber: member.EnvelopeNumber,
			MemberName:     member.FullName(),
			DateGiven:      rec.DateGiven,
			Amounts:        rec.Amounts,
			Notes:          rec.Notes,
		}
		if member.HouseholdID != nil {
			if h, ok := ds.Households[*member.HouseholdID]; ok {
				row.HouseholdName = h.DisplayName()
			}
		}
		if head, ok := heads[member.EnvelopeNumber]; ok {
			row.MemberName = head.FullName()
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DateGiven.Before(rows[j].DateGiven)
	})
	return rows, nil
}

func envelopesOf(ds analytics.GivingDataset) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range ds.Records {
		env := ds.Members[rec.MemberID].EnvelopeNumber
		if env == "" {
			continue
		}
		if _, ok := seen[env]; ok {
			continue
		}
		seen[env] = struct{}{}
		out = append(out, env)
	}
	return out
}

func resolveHeads(ctx context.Context, dir EnvelopeDirectory, churchID uuid.UUID, envelopes []string) (map[string]analytics.Person, error) {
	var (
		mu    sync.Mutex
		heads = make(map[string]analytics.Person, len(envelopes))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(envelopeFanOut)
	for _, env := range envelopes {
		env := env
		g.Go(func() error {
			members, err := dir.MembersByEnvelope(gctx, churchID, env)
			if err != nil {
				return fmt.Errorf("envelope %s: %w", env, err)
			}
			head, ok := analytics.ResolveHead(members)
			if !ok {
				return nil
			}
			mu.Lock()
			heads[env] = head
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return heads, nil
}

// GivingTable lays rows out under GivingHeader and appends a TOTAL row whose
// identifying columns are blank.
func GivingTable(rows []GivingRow) Table {
	t := Table{
		Header:      GivingHeader,
		Rows:        make([][]string, 0, len(rows)+1),
		NumericCols: []int{4, 5, 6, 7, 8, 9, 10},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, append(
			[]string{r.HouseholdName, r.EnvelopeNumber, r.MemberName, r.DateGiven.String()},
			append(amountCells(r.Amounts), r.Notes)...,
		))
	}
	t.Rows = append(t.Rows, append([]string{"", "", "", ""}, append(amountCells(TotalOf(rows)), "TOTAL")...))
	return t
}

func amountCells(a analytics.Amounts) []string {
	cells := make([]string, 0, 7)
	for _, c := range a.Categories() {
		cells = append(cells, money(c.Value))
	}
	return append(cells, money(a.Total()))
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// Filename is the download name for an export generated on day.
func Filename(day analytics.CalendarDate, ext string) string {
	return fmt.Sprintf("giving-report-%s.%s", day, ext)
}
