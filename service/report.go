package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/model"
	"github.com/AnTengye/solarflow/pkg/logger"
)

// Inverters sheet layout: one header row, then enquiry, customer, serial,
// capacity in kWp.
const (
	inverterHeaderRows = 1
	inverterEnquiryCol = 0
	inverterNameCol    = 1
	inverterSerialCol  = 2
	inverterKWpCol     = 3
)

// EnergySource returns per-day inverter production.
type EnergySource interface {
	DailyEnergy(ctx context.Context, serial string, from, to time.Time) ([]DailyEnergy, error)
}

// YieldEntry is one ranked installation. Entries with Error set could not
// be computed and rank after every computed entry.
type YieldEntry struct {
	Rank          int     `json:"rank"`
	EnquiryNumber string  `json:"enquiry_number"`
	Customer      string  `json:"customer"`
	Serial        string  `json:"serial"`
	CapacityKWp   float64 `json:"capacity_kwp"`
	WeeklyKWh     float64 `json:"weekly_kwh"`
	SpecificYield float64 `json:"specific_yield"` // kWh per kWp over the window
	Days          int     `json:"days"`
	Error         string  `json:"error,omitempty"`
}

// YieldReport ranks installations by specific yield over a window of
// complete days.
type YieldReport struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	GeneratedAt string       `json:"generated_at"`
	Entries     []YieldEntry `json:"entries"`
}

type ReportService struct {
	rows   RowSource
	energy EnergySource
	cache  ReportCache
	config *config.ReportConfig
	now    func() time.Time
}

// NewReportService builds the yield report. cache may be nil.
func NewReportService(rows RowSource, energy EnergySource, cache ReportCache, cfg *config.ReportConfig) *ReportService {
	return &ReportService{rows: rows, energy: energy, cache: cache, config: cfg, now: time.Now}
}

// Window returns the last n complete days ending yesterday.
func (s *ReportService) Window() (time.Time, time.Time) {
	days := s.config.Days
	if days <= 0 {
		days = 7
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := today.AddDate(0, 0, -1)
	return to.AddDate(0, 0, -(days - 1)), to
}

// WeeklyYield reads the Inverters tab, queries every inverter for the
// window and ranks the installations by specific yield, highest first.
func (s *ReportService) WeeklyYield(ctx context.Context) (*YieldReport, error) {
	from, to := s.Window()
	key := fmt.Sprintf("yield:%s:%s", from.Format(monitorDateLayout), to.Format(monitorDateLayout))

	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warn(ctx, "report cache read failed", "error", err)
		} else if ok {
			var cached YieldReport
			if err := json.Unmarshal(data, &cached); err == nil {
				logger.Debug(ctx, "yield report served from cache", "key", key)
				return &cached, nil
			}
		}
	}

	rows, err := s.rows.FetchRows(ctx, model.SheetInverters)
	if err != nil {
		return nil, fmt.Errorf("failed to load inverters: %w", err)
	}

	var entries []YieldEntry
	for i, row := range rows {
		if i < inverterHeaderRows {
			continue
		}
		entry, ok := inverterEntry(row)
		if !ok {
			continue
		}
		if entry.Error == "" {
			s.fillYield(ctx, &entry, from, to)
		}
		entries = append(entries, entry)
	}
	RankYield(entries)

	report := &YieldReport{
		From:        from.Format(displayDateLayout),
		To:          to.Format(displayDateLayout),
		GeneratedAt: Timestamp(s.now()),
		Entries:     entries,
	}
	if report.Entries == nil {
		report.Entries = []YieldEntry{}
	}

	if s.cache != nil {
		ttl := time.Duration(s.config.CacheTTLMinutes) * time.Minute
		if data, err := json.Marshal(report); err == nil {
			if err := s.cache.Set(ctx, key, data, ttl); err != nil {
				logger.Warn(ctx, "report cache write failed", "error", err)
			}
		}
	}
	logger.Info(ctx, "yield report built", "installations", len(entries))
	return report, nil
}

func inverterEntry(row []any) (YieldEntry, bool) {
	entry := YieldEntry{
		EnquiryNumber: strings.TrimSpace(CellString(cellAt(row, inverterEnquiryCol))),
		Customer:      strings.TrimSpace(CellString(cellAt(row, inverterNameCol))),
		Serial:        strings.TrimSpace(CellString(cellAt(row, inverterSerialCol))),
	}
	if entry.EnquiryNumber == "" && entry.Serial == "" {
		return entry, false
	}
	if entry.Serial == "" {
		entry.Error = "missing inverter serial"
		return entry, true
	}

	capacity := strings.TrimSpace(CellString(cellAt(row, inverterKWpCol)))
	kwp, err := strconv.ParseFloat(capacity, 64)
	if err != nil || kwp <= 0 {
		entry.Error = fmt.Sprintf("invalid capacity %q", capacity)
		return entry, true
	}
	entry.CapacityKWp = kwp
	return entry, true
}

func (s *ReportService) fillYield(ctx context.Context, entry *YieldEntry, from, to time.Time) {
	days, err := s.energy.DailyEnergy(ctx, entry.Serial, from, to)
	if err != nil {
		logger.Warn(ctx, "inverter query failed", "serial", entry.Serial, "error", err)
		entry.Error = err.Error()
		return
	}
	var total float64
	for _, d := range days {
		total += d.KWh
	}
	entry.Days = len(days)
	entry.WeeklyKWh = round2(total)
	entry.SpecificYield = round2(total / entry.CapacityKWp)
}

// RankYield sorts entries by specific yield, highest first, with failed
// entries last, and numbers them from 1.
func RankYield(entries []YieldEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.Error == "") != (b.Error == "") {
			return a.Error == ""
		}
		return a.SpecificYield > b.SpecificYield
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
