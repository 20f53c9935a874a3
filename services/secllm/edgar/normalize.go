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

import "github.com/AleutianAI/secllm/services/secllm/datatypes"

const (
	taxonomyGAAP = "us-gaap"
	unitUSD      = "USD"
	unitPerShare = "USD/shares"
)

// ConceptRef names an XBRL element and the unit its values are read in.
type ConceptRef struct {
	Name string
	Unit string
}

// conceptCandidates lists, per canonical metric, the us-gaap elements
// filers use for it. The first element with a matching fact wins, so
// the order encodes preference.
var conceptCandidates = map[datatypes.MetricName][]ConceptRef{
	datatypes.MetricRevenue: {
		{"RevenueFromContractWithCustomerExcludingAssessedTax", unitUSD},
		{"Revenues", unitUSD},
		{"RevenueFromContractWithCustomerIncludingAssessedTax", unitUSD},
		{"SalesRevenueNet", unitUSD},
		{"SalesRevenueGoodsNet", unitUSD},
		{"RevenuesNetOfInterestExpense", unitUSD},
	},
	datatypes.MetricCostOfRevenue: {
		{"CostOfGoodsAndServicesSold", unitUSD},
		{"CostOfRevenue", unitUSD},
		{"CostOfGoodsSold", unitUSD},
		{"CostOfGoodsAndServiceExcludingDepreciationDepletionAndAmortization", unitUSD},
	},
	datatypes.MetricGrossProfit: {
		{"GrossProfit", unitUSD},
	},
	datatypes.MetricOperatingIncome: {
		{"OperatingIncomeLoss", unitUSD},
	},
	datatypes.MetricNetIncome: {
		{"NetIncomeLoss", unitUSD},
		{"ProfitLoss", unitUSD},
		{"NetIncomeLossAvailableToCommonStockholdersBasic", unitUSD},
	},
	datatypes.MetricEPSBasic: {
		{"EarningsPerShareBasic", unitPerShare},
		{"EarningsPerShareBasicAndDiluted", unitPerShare},
	},
	datatypes.MetricEPSDiluted: {
		{"EarningsPerShareDiluted", unitPerShare},
		{"EarningsPerShareBasicAndDiluted", unitPerShare},
	},
}

// Concepts returns the candidate elements for a metric in preference order.
func Concepts(m datatypes.MetricName) []ConceptRef {
	return append([]ConceptRef(nil), conceptCandidates[m]...)
}

// Extract builds an income statement for req from company facts.
//
// Each metric is resolved independently through its candidate concepts
// and the matcher. Once one metric has matched, later metrics only
// consider facts for the same period end. Filing metadata (period end, filing date, accession)
// comes from the first metric that matched, in statement order. The
// statement is ErrFilingNotFound when no metric matches at all.
func Extract(cf *CompanyFacts, req Request, m FilingMatcher) (*datatypes.IncomeStatement, error) {
	stmt := &datatypes.IncomeStatement{
		Ticker:       req.Ticker,
		CompanyName:  cf.EntityName,
		CIK:          CIKString(cf.CIK),
		FilingType:   req.FilingType,
		FiscalPeriod: req.Period,
	}

	var anchor *Fact
	for _, metric := range datatypes.AllMetrics {
		for _, ref := range conceptCandidates[metric] {
			facts := cf.Lookup(taxonomyGAAP, ref.Name, ref.Unit)
			if anchor != nil {
				facts = endingOn(facts, anchor.End)
			}
			fact, ok := m.Match(facts, req)
			if !ok {
				continue
			}
			stmt.SetMetric(metric, datatypes.Float(fact.Value))
			if anchor == nil {
				f := fact
				anchor = &f
			}
			break
		}
	}

	if anchor == nil {
		return nil, errFilingNotFound(req)
	}
	stmt.PeriodEnd = anchor.End
	stmt.FilingDate = anchor.Filed
	stmt.AccessionNumber = anchor.Accession
	return stmt, nil
}

func endingOn(facts []Fact, end string) []Fact {
	var out []Fact
	for _, f := range facts {
		if f.End == end {
			out = append(out, f)
		}
	}
	return out
}
