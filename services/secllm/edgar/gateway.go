// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package edgar is the data gateway: it turns a ticker and fiscal period
// into income-statement facts read from SEC EDGAR's XBRL API.
//
// # Description
//
// The gateway resolves the ticker to a CIK through the SEC ticker
// directory, fetches the registrant's company facts, maps us-gaap
// concepts onto canonical metrics and asks a FilingMatcher which fact
// answers the requested period. Results are memoized in an injected
// cache; concurrent identical fetches are collapsed with singleflight.
//
// # Thread Safety
//
// Gateway is safe for concurrent use.
package edgar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/secllm/pkg/validation"
	"github.com/AleutianAI/secllm/services/secllm/cache"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

var tracer = otel.Tracer("secllm.edgar")

// Request asks for one income statement.
type Request struct {
	Ticker     string
	FilingType datatypes.FilingType
	Period     datatypes.FiscalPeriod
}

// Validate normalizes nothing; it only checks. Use NewRequest to build a
// normalized request from loose input.
func (r Request) Validate() error {
	if err := validation.ValidateTicker(r.Ticker); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := r.Period.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch r.FilingType {
	case datatypes.FilingType10K:
		if !r.Period.IsAnnual() {
			return fmt.Errorf("%w: a 10-K reports a fiscal year, not %s", ErrInvalidRequest, r.Period.Label())
		}
	case datatypes.FilingType10Q:
		if r.Period.IsAnnual() {
			return fmt.Errorf("%w: a 10-Q needs a quarter", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: filing type %q", ErrInvalidRequest, r.FilingType)
	}
	return nil
}

// NewRequest builds a validated request. An empty filingType is derived
// from the period: 10-K for a fiscal year, 10-Q for a quarter.
func NewRequest(ticker, filingType string, period datatypes.FiscalPeriod) (Request, error) {
	t, err := validation.SanitizeTicker(ticker)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	ft := period.FilingType()
	if strings.TrimSpace(filingType) != "" {
		ft, err = datatypes.ParseFilingType(filingType)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	req := Request{Ticker: t, FilingType: ft, Period: period}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Key is the cache key of the request.
func (r Request) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.Ticker, r.FilingType, r.Period.Label())
}

// Source fetches income statements. The executor depends on this
// interface, not on Gateway.
type Source interface {
	IncomeStatement(ctx context.Context, req Request) (*datatypes.IncomeStatement, error)
}

// CompanyLookup resolves tickers to registrants.
type CompanyLookup interface {
	Company(ctx context.Context, ticker string) (datatypes.Company, error)
}

// Archive receives every statement fetched from upstream.
type Archive interface {
	Record(ctx context.Context, stmt *datatypes.IncomeStatement) error
}

const (
	tickersKey = "company_tickers"
	tickersTTL = 24 * time.Hour

	// sharedFetchTimeout bounds a collapsed fetch, which no longer follows
	// any single caller's deadline.
	sharedFetchTimeout = 2 * time.Minute
)

// Gateway implements Source and CompanyLookup over EDGAR.
type Gateway struct {
	client     *Client
	statements cache.Cache[*datatypes.IncomeStatement]
	facts      cache.Cache[*CompanyFacts]
	tickers    cache.Cache[map[string]datatypes.Company]
	matcher    FilingMatcher
	archive    Archive
	group      singleflight.Group
	logger     *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithStatementCache replaces the default in-memory statement cache.
func WithStatementCache(c cache.Cache[*datatypes.IncomeStatement]) Option {
	return func(g *Gateway) {
		if c != nil {
			g.statements = c
		}
	}
}

// WithMatcher replaces DefaultMatcher.
func WithMatcher(m FilingMatcher) Option {
	return func(g *Gateway) {
		if m != nil {
			g.matcher = m
		}
	}
}

// WithArchive records freshly fetched statements.
func WithArchive(a Archive) Option {
	return func(g *Gateway) { g.archive = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway creates a gateway over client.
//
// Statements default to a process-local cache with the standard TTL.
// Company facts documents are always held in a process-local cache with
// the same TTL so the several periods of one plan cost one download.
func NewGateway(client *Client, opts ...Option) *Gateway {
	g := &Gateway{
		client:     client,
		statements: cache.NewMemory[*datatypes.IncomeStatement](),
		facts:      cache.NewMemory[*CompanyFacts](),
		tickers:    cache.NewMemory[map[string]datatypes.Company](cache.WithTTL(tickersTTL)),
		matcher:    DefaultMatcher{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IncomeStatement returns the statement for req.
//
// # Outputs
//
//   - *datatypes.IncomeStatement: shared with the cache; callers must not
//     mutate it.
//   - error: wraps ErrInvalidRequest, ErrCompanyNotFound,
//     ErrFilingNotFound, ErrRateLimited, ErrUpstream or the context error.
func (g *Gateway) IncomeStatement(ctx context.Context, req Request) (*datatypes.IncomeStatement, error) {
	ctx, span := tracer.Start(ctx, "edgar.IncomeStatement")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticker", req.Ticker),
		attribute.String("filing_type", string(req.FilingType)),
		attribute.String("fiscal_period", req.Period.Label()),
	)

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	key := req.Key()
	if stmt, ok := g.statements.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return stmt, nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	v, err := g.shared(ctx, "statement:"+key, func(ctx context.Context) (any, error) {
		if stmt, ok := g.statements.Get(key); ok {
			return stmt, nil
		}
		stmt, err := g.fetchStatement(ctx, req)
		if err != nil {
			return nil, err
		}
		g.statements.Set(key, stmt)
		g.record(ctx, stmt)
		return stmt, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stmt, ok := v.(*datatypes.IncomeStatement)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight: %T", v)
	}
	return stmt, nil
}

func (g *Gateway) fetchStatement(ctx context.Context, req Request) (*datatypes.IncomeStatement, error) {
	company, err := g.Company(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	cf, err := g.companyFacts(ctx, company)
	if err != nil {
		return nil, err
	}

	stmt, err := Extract(cf, req, g.matcher)
	if err != nil {
		return nil, err
	}
	if company.Name != "" {
		stmt.CompanyName = company.Name
	}

	g.logger.Info("fetched income statement",
		slog.String("ticker", req.Ticker),
		slog.String("period", req.Period.Label()),
		slog.String("accession", stmt.AccessionNumber),
		slog.Int("metrics", len(stmt.ReportedMetrics())))
	return stmt, nil
}

func (g *Gateway) companyFacts(ctx context.Context, company datatypes.Company) (*CompanyFacts, error) {
	if cf, ok := g.facts.Get(company.CIK); ok {
		return cf, nil
	}
	v, err := g.shared(ctx, "facts:"+company.CIK, func(ctx context.Context) (any, error) {
		if cf, ok := g.facts.Get(company.CIK); ok {
			return cf, nil
		}
		var cik int
		if _, err := fmt.Sscanf(company.CIK, "%d", &cik); err != nil {
			return nil, fmt.Errorf("%w: bad CIK %q", ErrUpstream, company.CIK)
		}
		cf, err := g.client.CompanyFacts(ctx, cik)
		if err != nil {
			return nil, err
		}
		g.facts.Set(company.CIK, cf)
		return cf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CompanyFacts), nil
}

// Company resolves a ticker to its registrant.
func (g *Gateway) Company(ctx context.Context, ticker string) (datatypes.Company, error) {
	t, err := validation.SanitizeTicker(ticker)
	if err != nil {
		return datatypes.Company{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	dir, ok := g.tickers.Get(tickersKey)
	if !ok {
		v, err := g.shared(ctx, tickersKey, func(ctx context.Context) (any, error) {
			if dir, ok := g.tickers.Get(tickersKey); ok {
				return dir, nil
			}
			dir, err := g.client.Tickers(ctx)
			if err != nil {
				return nil, err
			}
			g.tickers.Set(tickersKey, dir)
			return dir, nil
		})
		if err != nil {
			return datatypes.Company{}, err
		}
		dir = v.(map[string]datatypes.Company)
	}

	for _, candidate := range validation.ClassShareVariants(t) {
		if c, ok := dir[candidate]; ok {
			return c, nil
		}
	}
	return datatypes.Company{}, fmt.Errorf("%w: %s", ErrCompanyNotFound, t)
}

// shared runs fn once for all concurrent callers of key. fn runs on a
// context detached from the callers' cancellation; each caller waits only
// as long as its own ctx allows, so one caller giving up does not fail
// the others.
func (g *Gateway) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := g.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) record(ctx context.Context, stmt *datatypes.IncomeStatement) {
	if g.archive == nil {
		return
	}
	if err := g.archive.Record(ctx, stmt); err != nil {
		g.logger.Warn("archive write failed",
			slog.String("ticker", stmt.Ticker),
			slog.String("error", err.Error()))
	}
}

func errFilingNotFound(req Request) error {
	return fmt.Errorf("%w: %s %s for %s", ErrFilingNotFound, req.FilingType, req.Period.Label(), req.Ticker)
}

// IsNotFound reports whether err means the company or filing does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCompanyNotFound) || errors.Is(err, ErrFilingNotFound)
}
