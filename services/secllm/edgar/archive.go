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
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/secllm/pkg/validation"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

const measurementIncomeStatement = "income_statement"

// InfluxArchive writes fetched statements to InfluxDB as one point per
// filing period, timestamped at the period end. It never feeds answers
// back into the pipeline; it is an audit trail of what EDGAR returned.
type InfluxArchive struct {
	writer api.WriteAPIBlocking
}

// NewInfluxArchive wraps a blocking write API.
func NewInfluxArchive(writer api.WriteAPIBlocking) *InfluxArchive {
	return &InfluxArchive{writer: writer}
}

// DialInfluxArchive connects to url and returns the archive together with
// the client, which the caller must Close.
func DialInfluxArchive(url, token, org, bucket string) (*InfluxArchive, influxdb2.Client) {
	client := influxdb2.NewClient(url, token)
	return NewInfluxArchive(client.WriteAPIBlocking(org, bucket)), client
}

// Record implements Archive.
func (a *InfluxArchive) Record(ctx context.Context, stmt *datatypes.IncomeStatement) error {
	p, err := StatementPoint(stmt)
	if err != nil {
		return err
	}
	if err := a.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write %s point: %w", stmt.Ticker, err)
	}
	return nil
}

// StatementPoint converts a statement to a line-protocol point. Metrics
// the filing does not report are omitted; a statement with no metrics
// cannot be archived.
func StatementPoint(stmt *datatypes.IncomeStatement) (*write.Point, error) {
	if err := validation.ValidateTicker(stmt.Ticker); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	fields := make(map[string]interface{})
	for _, m := range stmt.ReportedMetrics() {
		fields[string(m)] = *stmt.Metric(m)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("archive: %s %s has no reported metrics", stmt.Ticker, stmt.FiscalPeriod.Label())
	}

	ts, err := time.Parse(factDateLayout, stmt.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("archive: period end %q: %w", stmt.PeriodEnd, err)
	}

	return influxdb2.NewPoint(
		measurementIncomeStatement,
		map[string]string{
			"ticker":        stmt.Ticker,
			"cik":           stmt.CIK,
			"filing_type":   string(stmt.FilingType),
			"fiscal_period": stmt.FiscalPeriod.Label(),
			"accession":     stmt.AccessionNumber,
		},
		fields,
		ts,
	), nil
}
