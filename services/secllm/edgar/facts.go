// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package edgar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

const factDateLayout = "2006-01-02"

// Fact is one reported value of an XBRL concept.
//
// A filing reports its own period and the comparative periods, all tagged
// with the filing's fiscal year and period, so FiscalYear alone does not
// identify the period a value covers. Start and End do.
type Fact struct {
	Start        string  `json:"start,omitempty"`
	End          string  `json:"end"`
	Value        float64 `json:"val"`
	Accession    string  `json:"accn"`
	FiscalYear   int     `json:"fy"`
	FiscalPeriod string  `json:"fp"`
	Form         string  `json:"form"`
	Filed        string  `json:"filed"`
	Frame        string  `json:"frame,omitempty"`
}

// Duration returns End minus Start. Instant facts report zero.
func (f Fact) Duration() time.Duration {
	if f.Start == "" {
		return 0
	}
	start, err1 := time.Parse(factDateLayout, f.Start)
	end, err2 := time.Parse(factDateLayout, f.End)
	if err1 != nil || err2 != nil {
		return 0
	}
	return end.Sub(start)
}

// Concept holds every reported value of one XBRL element, keyed by unit.
type Concept struct {
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Units       map[string][]Fact `json:"units"`
}

// CompanyFacts is the companyfacts API document.
type CompanyFacts struct {
	CIK        int                           `json:"cik"`
	EntityName string                        `json:"entityName"`
	Facts      map[string]map[string]Concept `json:"facts"`
}

// Lookup returns the facts of taxonomy:name in unit, or nil.
func (cf *CompanyFacts) Lookup(taxonomy, name, unit string) []Fact {
	if cf == nil {
		return nil
	}
	concepts, ok := cf.Facts[taxonomy]
	if !ok {
		return nil
	}
	c, ok := concepts[name]
	if !ok {
		return nil
	}
	return c.Units[unit]
}

// CIKString formats a CIK the way EDGAR paths expect: ten digits,
// zero padded.
func CIKString(cik int) string {
	return fmt.Sprintf("%010d", cik)
}

// FilingURL returns the archive index page of a filing, used as the
// citation link.
func FilingURL(cik, accession string) string {
	trimmed := strings.TrimLeft(cik, "0")
	if trimmed == "" || accession == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s/%s-index.htm",
		DefaultArchivesURL, trimmed, strings.ReplaceAll(accession, "-", ""), accession)
}

// CompanyFacts fetches the XBRL facts of a registrant.
func (c *Client) CompanyFacts(ctx context.Context, cik int) (*CompanyFacts, error) {
	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", strings.TrimRight(c.cfg.DataURL, "/"), CIKString(cik))
	var cf CompanyFacts
	if err := c.getJSON(ctx, url, &cf); err != nil {
		if errors.Is(err, errNotFoundStatus) {
			return nil, fmt.Errorf("%w: no XBRL facts for CIK %s", ErrFilingNotFound, CIKString(cik))
		}
		return nil, err
	}
	return &cf, nil
}

// tickerEntry is one row of company_tickers.json.
type tickerEntry struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// Tickers fetches the ticker directory, keyed by upper-case ticker.
func (c *Client) Tickers(ctx context.Context) (map[string]datatypes.Company, error) {
	var raw map[string]tickerEntry
	if err := c.getJSON(ctx, c.cfg.TickersURL, &raw); err != nil {
		if errors.Is(err, errNotFoundStatus) {
			return nil, fmt.Errorf("%w: ticker directory missing", ErrUpstream)
		}
		return nil, err
	}
	out := make(map[string]datatypes.Company, len(raw))
	for _, e := range raw {
		t := strings.ToUpper(e.Ticker)
		if _, dup := out[t]; dup {
			continue
		}
		out[t] = datatypes.Company{Ticker: t, Name: e.Title, CIK: CIKString(e.CIK)}
	}
	return out, nil
}
