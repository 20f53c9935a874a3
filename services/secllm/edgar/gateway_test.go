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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

// =============================================================================
// Fixtures
// =============================================================================

const testUserAgent = "secllm-test test@example.com"

func usd(start, end string, val float64, fy int, fp, form, filed, accn string) Fact {
	return Fact{Start: start, End: end, Value: val, FiscalYear: fy, FiscalPeriod: fp, Form: form, Filed: filed, Accession: accn}
}

// appleFacts mirrors the shape of the real companyfacts document: each
// 10-K repeats the two prior years as comparatives under its own fy tag.
func appleFacts() CompanyFacts {
	revenue := []Fact{
		usd("2021-09-26", "2022-09-24", 394328000000, 2023, "FY", "10-K", "2023-11-03", "0000320193-23-000106"),
		usd("2022-09-25", "2023-09-30", 383285000000, 2023, "FY", "10-K", "2023-11-03", "0000320193-23-000106"),
		usd("2022-09-25", "2023-09-30", 383285000000, 2024, "FY", "10-K", "2024-11-01", "0000320193-24-000123"),
		usd("2023-10-01", "2024-09-28", 391035000000, 2024, "FY", "10-K", "2024-11-01", "0000320193-24-000123"),
		usd("2024-03-31", "2024-06-29", 85777000000, 2024, "Q3", "10-Q", "2024-08-02", "0000320193-24-000081"),
		usd("2023-10-01", "2024-06-29", 294866000000, 2024, "Q3", "10-Q", "2024-08-02", "0000320193-24-000081"),
		usd("2023-04-02", "2023-07-01", 81797000000, 2024, "Q3", "10-Q", "2024-08-02", "0000320193-24-000081"),
	}
	netIncome := []Fact{
		usd("2022-09-25", "2023-09-30", 96995000000, 2023, "FY", "10-K", "2023-11-03", "0000320193-23-000106"),
		usd("2023-10-01", "2024-09-28", 93736000000, 2024, "FY", "10-K", "2024-11-01", "0000320193-24-000123"),
	}
	eps := []Fact{
		usd("2023-10-01", "2024-09-28", 6.08, 2024, "FY", "10-K", "2024-11-01", "0000320193-24-000123"),
	}
	return CompanyFacts{
		CIK:        320193,
		EntityName: "Apple Inc.",
		Facts: map[string]map[string]Concept{
			"us-gaap": {
				"RevenueFromContractWithCustomerExcludingAssessedTax": {Units: map[string][]Fact{"USD": revenue}},
				"NetIncomeLoss":           {Units: map[string][]Fact{"USD": netIncome}},
				"EarningsPerShareDiluted": {Units: map[string][]Fact{"USD/shares": eps}},
			},
		},
	}
}

type fakeEDGAR struct {
	server       *httptest.Server
	factsHits    atomic.Int32
	tickerHits   atomic.Int32
	failFirst    atomic.Int32
	failStatus   int
	lastAgent    atomic.Value
	factsLatency time.Duration
}

func newFakeEDGAR(t *testing.T) *fakeEDGAR {
	t.Helper()
	f := &fakeEDGAR{failStatus: http.StatusTooManyRequests}
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		f.tickerHits.Add(1)
		f.lastAgent.Store(r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(map[string]tickerEntry{
			"0": {CIK: 320193, Ticker: "AAPL", Title: "Apple Inc."},
			"1": {CIK: 1067983, Ticker: "BRK-B", Title: "BERKSHIRE HATHAWAY INC"},
		})
	})
	mux.HandleFunc("/api/xbrl/companyfacts/", func(w http.ResponseWriter, r *http.Request) {
		f.factsHits.Add(1)
		if f.failFirst.Load() > 0 {
			f.failFirst.Add(-1)
			w.WriteHeader(f.failStatus)
			return
		}
		if f.factsLatency > 0 {
			time.Sleep(f.factsLatency)
		}
		if r.URL.Path != "/api/xbrl/companyfacts/CIK0000320193.json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(appleFacts())
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEDGAR) gateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	cfg := ClientConfig{
		UserAgent:            testUserAgent,
		DataURL:              f.server.URL,
		TickersURL:           f.server.URL + "/files/company_tickers.json",
		RequestsPerSecond:    1000,
		MaxRetries:           2,
		RetryInitialInterval: time.Millisecond,
	}
	client, err := NewClient(cfg, f.server.Client(), nil)
	require.NoError(t, err)
	return NewGateway(client, opts...)
}

func fy(year int) datatypes.FiscalPeriod { return datatypes.FiscalPeriod{Year: year} }

// =============================================================================
// Gateway
// =============================================================================

func TestGateway_AnnualStatement(t *testing.T) {
	f := newFakeEDGAR(t)
	g := f.gateway(t)

	req, err := NewRequest("aapl", "", fy(2024))
	require.NoError(t, err)

	stmt, err := g.IncomeStatement(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", stmt.Ticker)
	assert.Equal(t, "Apple Inc.", stmt.CompanyName)
	assert.Equal(t, "0000320193", stmt.CIK)
	assert.Equal(t, datatypes.FilingType10K, stmt.FilingType)
	assert.Equal(t, "2024-09-28", stmt.PeriodEnd)
	assert.Equal(t, "2024-11-01", stmt.FilingDate)
	assert.Equal(t, "0000320193-24-000123", stmt.AccessionNumber)
	require.NotNil(t, stmt.Revenue)
	assert.Equal(t, 391035000000.0, *stmt.Revenue)
	require.NotNil(t, stmt.NetIncome)
	assert.Equal(t, 93736000000.0, *stmt.NetIncome)
	require.NotNil(t, stmt.EPSDiluted)
	assert.Equal(t, 6.08, *stmt.EPSDiluted)
	assert.Nil(t, stmt.GrossProfit)
	assert.Equal(t, testUserAgent, f.lastAgent.Load())
}

func TestGateway_PriorYearSkipsComparatives(t *testing.T) {
	g := newFakeEDGAR(t).gateway(t)

	stmt, err := g.IncomeStatement(context.Background(), Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2023)})
	require.NoError(t, err)
	assert.Equal(t, 383285000000.0, *stmt.Revenue)
	assert.Equal(t, "2023-09-30", stmt.PeriodEnd)
	assert.Equal(t, "2023-11-03", stmt.FilingDate, "the FY2023 10-K, not the FY2024 comparative")
}

func TestGateway_QuarterUsesThreeMonthFact(t *testing.T) {
	g := newFakeEDGAR(t).gateway(t)

	req, err := NewRequest("AAPL", "10-Q", datatypes.FiscalPeriod{Year: 2024, Quarter: 3})
	require.NoError(t, err)
	stmt, err := g.IncomeStatement(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 85777000000.0, *stmt.Revenue)
	assert.Nil(t, stmt.NetIncome)
}

func TestGateway_NotFound(t *testing.T) {
	g := newFakeEDGAR(t).gateway(t)
	ctx := context.Background()

	_, err := g.IncomeStatement(ctx, Request{Ticker: "ZZZZ", FilingType: datatypes.FilingType10K, Period: fy(2024)})
	assert.ErrorIs(t, err, ErrCompanyNotFound)
	assert.True(t, IsNotFound(err))

	_, err = g.IncomeStatement(ctx, Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2019)})
	assert.ErrorIs(t, err, ErrFilingNotFound)

	// No XBRL document for this registrant.
	_, err = g.IncomeStatement(ctx, Request{Ticker: "BRK.B", FilingType: datatypes.FilingType10K, Period: fy(2024)})
	assert.ErrorIs(t, err, ErrFilingNotFound)
}

func TestGateway_InvalidRequest(t *testing.T) {
	g := newFakeEDGAR(t).gateway(t)
	tests := []Request{
		{Ticker: "", FilingType: datatypes.FilingType10K, Period: fy(2024)},
		{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: datatypes.FiscalPeriod{Year: 2024, Quarter: 2}},
		{Ticker: "AAPL", FilingType: datatypes.FilingType10Q, Period: fy(2024)},
		{Ticker: "AAPL", FilingType: "8-K", Period: fy(2024)},
		{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(1900)},
	}
	for _, req := range tests {
		_, err := g.IncomeStatement(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
}

func TestGateway_CachesStatementsAndFacts(t *testing.T) {
	f := newFakeEDGAR(t)
	g := f.gateway(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.IncomeStatement(ctx, Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2024)})
		require.NoError(t, err)
	}
	_, err := g.IncomeStatement(ctx, Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2023)})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.factsHits.Load())
	assert.Equal(t, int32(1), f.tickerHits.Load())
}

func TestGateway_ConcurrentFetchesCollapse(t *testing.T) {
	f := newFakeEDGAR(t)
	f.factsLatency = 50 * time.Millisecond
	g := f.gateway(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.IncomeStatement(context.Background(), Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2024)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.factsHits.Load())
}

func TestGateway_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	f := newFakeEDGAR(t)
	f.factsLatency = 300 * time.Millisecond
	g := f.gateway(t)
	req := Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2024)}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := g.IncomeStatement(ctxA, req)
		errA <- err
	}()
	require.Eventually(t, func() bool { return f.factsHits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	type result struct {
		stmt *datatypes.IncomeStatement
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		stmt, err := g.IncomeStatement(context.Background(), req)
		resB <- result{stmt, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	b := <-resB
	require.NoError(t, b.err)
	require.NotNil(t, b.stmt.Revenue)
	assert.Equal(t, int32(1), f.factsHits.Load())
}

func TestGateway_RetriesRateLimit(t *testing.T) {
	f := newFakeEDGAR(t)
	f.failFirst.Store(2)
	g := f.gateway(t)

	stmt, err := g.IncomeStatement(context.Background(), Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2024)})
	require.NoError(t, err)
	assert.NotNil(t, stmt.Revenue)
	assert.Equal(t, int32(3), f.factsHits.Load())
}

func TestGateway_RateLimitExhausted(t *testing.T) {
	f := newFakeEDGAR(t)
	f.failFirst.Store(10)
	g := f.gateway(t)

	_, err := g.IncomeStatement(context.Background(), Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2024)})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), f.factsHits.Load(), "one attempt plus two retries")
}

func TestGateway_ServerErrorIsUpstream(t *testing.T) {
	f := newFakeEDGAR(t)
	f.failStatus = http.StatusBadGateway
	f.failFirst.Store(10)
	g := f.gateway(t)

	_, err := g.IncomeStatement(context.Background(), Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2024)})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestGateway_CancelledContext(t *testing.T) {
	g := newFakeEDGAR(t).gateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.IncomeStatement(ctx, Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2024)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGateway_Company(t *testing.T) {
	g := newFakeEDGAR(t).gateway(t)

	c, err := g.Company(context.Background(), "brk.b")
	require.NoError(t, err)
	assert.Equal(t, "BRK-B", c.Ticker)
	assert.Equal(t, "0001067983", c.CIK)

	_, err = g.Company(context.Background(), "DROP TABLE")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

type recordingArchive struct {
	mu    sync.Mutex
	stmts []*datatypes.IncomeStatement
}

func (a *recordingArchive) Record(_ context.Context, s *datatypes.IncomeStatement) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stmts = append(a.stmts, s)
	return nil
}

func TestGateway_ArchivesFreshFetchesOnly(t *testing.T) {
	archive := &recordingArchive{}
	g := newFakeEDGAR(t).gateway(t, WithArchive(archive))
	req := Request{Ticker: "AAPL", FilingType: datatypes.FilingType10K, Period: fy(2024)}

	_, err := g.IncomeStatement(context.Background(), req)
	require.NoError(t, err)
	_, err = g.IncomeStatement(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, archive.stmts, 1)
}

// =============================================================================
// Matcher and helpers
// =============================================================================

func TestDefaultMatcher_AmendmentWinsTie(t *testing.T) {
	facts := []Fact{
		usd("2023-10-01", "2024-09-28", 100, 2024, "FY", "10-K", "2024-11-01", "a"),
		usd("2023-10-01", "2024-09-28", 101, 2024, "FY", "10-K/A", "2025-01-15", "b"),
	}
	got, ok := DefaultMatcher{}.Match(facts, Request{FilingType: datatypes.FilingType10K, Period: fy(2024)})
	require.True(t, ok)
	assert.Equal(t, 101.0, got.Value)
}

func TestDefaultMatcher_FallsBackToPeriodEnd(t *testing.T) {
	facts := []Fact{
		usd("2023-01-01", "2023-12-31", 50, 2024, "FY", "10-K", "2024-02-20", "a"),
	}
	got, ok := DefaultMatcher{}.Match(facts, Request{FilingType: datatypes.FilingType10K, Period: fy(2023)})
	require.True(t, ok)
	assert.Equal(t, 50.0, got.Value)
}

func TestDefaultMatcher_NoFourthQuarter10Q(t *testing.T) {
	facts := []Fact{
		usd("2024-06-30", "2024-09-28", 90, 2024, "FY", "10-K", "2024-11-01", "a"),
	}
	_, ok := DefaultMatcher{}.Match(facts, Request{FilingType: datatypes.FilingType10Q, Period: datatypes.FiscalPeriod{Year: 2024, Quarter: 4}})
	assert.False(t, ok)
}

func TestFilingURL(t *testing.T) {
	assert.Equal(t,
		"https://www.sec.gov/Archives/edgar/data/320193/000032019324000123/0000320193-24-000123-index.htm",
		FilingURL("0000320193", "0000320193-24-000123"))
	assert.Empty(t, FilingURL("", "x"))
}

func TestNewClient_RequiresUserAgent(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStatementPoint(t *testing.T) {
	stmt := &datatypes.IncomeStatement{
		Ticker:       "AAPL",
		CIK:          "0000320193",
		FilingType:   datatypes.FilingType10K,
		FiscalPeriod: fy(2024),
		PeriodEnd:    "2024-09-28",
		Revenue:      datatypes.Float(391035000000),
	}
	p, err := StatementPoint(stmt)
	require.NoError(t, err)
	assert.Equal(t, measurementIncomeStatement, p.Name())
	assertField(t, p, "revenue", 391035000000.0)

	stmt.Revenue = nil
	_, err = StatementPoint(stmt)
	assert.Error(t, err)
}

func assertField(t *testing.T, p *write.Point, key string, want float64) {
	t.Helper()
	for _, f := range p.FieldList() {
		if f.Key == key {
			assert.Equal(t, want, f.Value)
			return
		}
	}
	t.Fatalf("field %q missing", key)
}
