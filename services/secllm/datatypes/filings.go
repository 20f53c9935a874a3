// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FilingType is the SEC form an income statement was reported on.
type FilingType string

const (
	FilingType10K FilingType = "10-K"
	FilingType10Q FilingType = "10-Q"
)

// ParseFilingType accepts "10-K", "10k", "10-Q" and "10q" in any case.
func ParseFilingType(s string) (FilingType, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "10K":
		return FilingType10K, nil
	case "10Q":
		return FilingType10Q, nil
	}
	return "", fmt.Errorf("unsupported filing type %q", s)
}

// FiscalPeriod identifies a fiscal year or one quarter of it.
// Quarter is 0 for a full fiscal year.
type FiscalPeriod struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter,omitempty"`
}

// IsAnnual reports whether the period covers a full fiscal year.
func (p FiscalPeriod) IsAnnual() bool { return p.Quarter == 0 }

// Label renders the period as "FY2024" or "Q3 FY2024".
func (p FiscalPeriod) Label() string {
	if p.IsAnnual() {
		return fmt.Sprintf("FY%d", p.Year)
	}
	return fmt.Sprintf("Q%d FY%d", p.Quarter, p.Year)
}

// String implements fmt.Stringer.
func (p FiscalPeriod) String() string { return p.Label() }

// FilingType returns the form that reports this period.
func (p FiscalPeriod) FilingType() FilingType {
	if p.IsAnnual() {
		return FilingType10K
	}
	return FilingType10Q
}

// Validate checks the year and quarter ranges.
func (p FiscalPeriod) Validate() error {
	if p.Year < 1993 || p.Year > 2100 {
		return fmt.Errorf("fiscal year %d out of range", p.Year)
	}
	if p.Quarter < 0 || p.Quarter > 4 {
		return fmt.Errorf("quarter %d out of range", p.Quarter)
	}
	return nil
}

var (
	fiscalYearPattern  = regexp.MustCompile(`^(?:FY)?\s*(\d{4})$`)
	quarterPattern     = regexp.MustCompile(`^Q([1-4])\s*(?:FY)?\s*(\d{4})$`)
	yearQuarterPattern = regexp.MustCompile(`^(?:FY)?\s*(\d{4})\s*-?\s*Q([1-4])$`)
)

// ParseFiscalPeriod parses "FY2024", "2024", "Q3 FY2024", "Q3 2024",
// "FY2024 Q3" and "2024Q3".
func ParseFiscalPeriod(s string) (FiscalPeriod, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	var p FiscalPeriod
	switch {
	case fiscalYearPattern.MatchString(in):
		m := fiscalYearPattern.FindStringSubmatch(in)
		p.Year, _ = strconv.Atoi(m[1])
	case quarterPattern.MatchString(in):
		m := quarterPattern.FindStringSubmatch(in)
		p.Quarter, _ = strconv.Atoi(m[1])
		p.Year, _ = strconv.Atoi(m[2])
	case yearQuarterPattern.MatchString(in):
		m := yearQuarterPattern.FindStringSubmatch(in)
		p.Year, _ = strconv.Atoi(m[1])
		p.Quarter, _ = strconv.Atoi(m[2])
	default:
		return FiscalPeriod{}, fmt.Errorf("unrecognized fiscal period %q", s)
	}
	if err := p.Validate(); err != nil {
		return FiscalPeriod{}, err
	}
	return p, nil
}

// MetricName is a canonical income-statement line item.
type MetricName string

const (
	MetricRevenue         MetricName = "revenue"
	MetricCostOfRevenue   MetricName = "cost_of_revenue"
	MetricGrossProfit     MetricName = "gross_profit"
	MetricOperatingIncome MetricName = "operating_income"
	MetricNetIncome       MetricName = "net_income"
	MetricEPSBasic        MetricName = "eps_basic"
	MetricEPSDiluted      MetricName = "eps_diluted"
)

// AllMetrics lists every canonical metric in statement order.
var AllMetrics = []MetricName{
	MetricRevenue,
	MetricCostOfRevenue,
	MetricGrossProfit,
	MetricOperatingIncome,
	MetricNetIncome,
	MetricEPSBasic,
	MetricEPSDiluted,
}

var metricAliases = map[string]MetricName{
	"revenue":          MetricRevenue,
	"revenues":         MetricRevenue,
	"sales":            MetricRevenue,
	"net_sales":        MetricRevenue,
	"total_revenue":    MetricRevenue,
	"cost_of_revenue":  MetricCostOfRevenue,
	"cost_of_sales":    MetricCostOfRevenue,
	"cogs":             MetricCostOfRevenue,
	"gross_profit":     MetricGrossProfit,
	"operating_income": MetricOperatingIncome,
	"operating_profit": MetricOperatingIncome,
	"ebit":             MetricOperatingIncome,
	"net_income":       MetricNetIncome,
	"net_profit":       MetricNetIncome,
	"net_earnings":     MetricNetIncome,
	"eps_basic":        MetricEPSBasic,
	"basic_eps":        MetricEPSBasic,
	"eps":              MetricEPSDiluted,
	"eps_diluted":      MetricEPSDiluted,
	"diluted_eps":      MetricEPSDiluted,
}

// ParseMetricName maps loose spellings ("Net Income", "EPS") to a canonical metric.
func ParseMetricName(s string) (MetricName, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if m, ok := metricAliases[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// DisplayName returns a title-case label for the metric.
func (m MetricName) DisplayName() string {
	switch m {
	case MetricEPSBasic:
		return "EPS (Basic)"
	case MetricEPSDiluted:
		return "EPS (Diluted)"
	}
	words := strings.Split(string(m), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// IncomeStatement is one filing's income-statement facts for one period.
//
// Metrics are nil when the filing does not report the line item. Values
// are never mutated after the gateway returns them.
type IncomeStatement struct {
	Ticker          string       `json:"ticker"`
	CompanyName     string       `json:"company_name"`
	CIK             string       `json:"cik"`
	FilingType      FilingType   `json:"filing_type"`
	FiscalPeriod    FiscalPeriod `json:"fiscal_period"`
	PeriodEnd       string       `json:"period_end,omitempty"`
	FilingDate      string       `json:"filing_date,omitempty"`
	AccessionNumber string       `json:"accession_number,omitempty"`

	Revenue         *float64 `json:"revenue"`
	CostOfRevenue   *float64 `json:"cost_of_revenue"`
	GrossProfit     *float64 `json:"gross_profit"`
	OperatingIncome *float64 `json:"operating_income"`
	NetIncome       *float64 `json:"net_income"`
	EPSBasic        *float64 `json:"eps_basic"`
	EPSDiluted      *float64 `json:"eps_diluted"`
}

// Metric returns the value of a canonical metric, nil when unreported.
func (s *IncomeStatement) Metric(name MetricName) *float64 {
	switch name {
	case MetricRevenue:
		return s.Revenue
	case MetricCostOfRevenue:
		return s.CostOfRevenue
	case MetricGrossProfit:
		return s.GrossProfit
	case MetricOperatingIncome:
		return s.OperatingIncome
	case MetricNetIncome:
		return s.NetIncome
	case MetricEPSBasic:
		return s.EPSBasic
	case MetricEPSDiluted:
		return s.EPSDiluted
	}
	return nil
}

// SetMetric assigns a metric. It is used only while the gateway assembles
// a statement.
func (s *IncomeStatement) SetMetric(name MetricName, v *float64) {
	switch name {
	case MetricRevenue:
		s.Revenue = v
	case MetricCostOfRevenue:
		s.CostOfRevenue = v
	case MetricGrossProfit:
		s.GrossProfit = v
	case MetricOperatingIncome:
		s.OperatingIncome = v
	case MetricNetIncome:
		s.NetIncome = v
	case MetricEPSBasic:
		s.EPSBasic = v
	case MetricEPSDiluted:
		s.EPSDiluted = v
	}
}

// ReportedMetrics returns the metrics present on the statement in statement order.
func (s *IncomeStatement) ReportedMetrics() []MetricName {
	out := make([]MetricName, 0, len(AllMetrics))
	for _, m := range AllMetrics {
		if s.Metric(m) != nil {
			out = append(out, m)
		}
	}
	return out
}

// Company is the registry entry for a ticker.
type Company struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	CIK    string `json:"cik"`
}

// Float is a convenience for building nullable metric values.
func Float(v float64) *float64 { return &v }
