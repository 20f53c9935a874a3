// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

const chartWidth = 30

var numbers = message.NewPrinter(language.English)

// Answer renders an analysis response.
//
// JSON mode writes the response document unchanged. Other modes print the
// summary, then the chart, computations, citations, guardrail outcome and
// step table when present.
func (p *Printer) Answer(resp *datatypes.AnalysisResponse) error {
	if resp == nil {
		return nil
	}
	if p.mode == ModeJSON {
		return p.JSON(resp)
	}

	if resp.NeedsClarification {
		p.Box("Need more detail", resp.FollowUpQuestion)
		return nil
	}

	p.Box("Answer", resp.Summary)

	if v := resp.Visualization; v != nil && len(v.Data) > 0 {
		fmt.Fprintln(p.w)
		p.Title(fmt.Sprintf("%s (%s)", metricLabel(v.Metric), v.ChartType))
		fmt.Fprint(p.w, p.chart(v))
	}

	if len(resp.Computations) > 0 {
		fmt.Fprintln(p.w)
		p.Title("Computations")
		for _, c := range resp.Computations {
			if f, ok := c["formula"].(string); ok && f != "" {
				fmt.Fprintf(p.w, "  %s %s\n", IconBullet, f)
			}
		}
	}

	if len(resp.Citations) > 0 {
		fmt.Fprintln(p.w)
		p.Title("Sources")
		for _, c := range resp.Citations {
			line := fmt.Sprintf("%s %s %s", c.Ticker, c.FilingType, c.FiscalPeriod)
			if c.FilingDate != "" {
				line += " filed " + c.FilingDate
			}
			fmt.Fprintf(p.w, "  %s %s\n", IconBullet, line)
			if c.URL != "" {
				fmt.Fprintf(p.w, "    %s\n", p.render(Styles.Muted, c.URL))
			}
		}
	}

	fmt.Fprintln(p.w)
	p.guardrails(resp.Guardrails)

	if failed := failedSteps(resp.Steps); len(failed) > 0 {
		fmt.Fprintln(p.w)
		p.Title("Steps")
		for _, s := range resp.Steps {
			p.step(s)
		}
	}
	return nil
}

func (p *Printer) guardrails(g datatypes.GuardrailInfo) {
	switch {
	case len(g.UnverifiedNumbers) > 0:
		p.Warning(fmt.Sprintf("%d of %d numbers not found in source data: %s",
			len(g.UnverifiedNumbers), g.NumbersChecked, strings.Join(g.UnverifiedNumbers, ", ")))
	case g.NumbersChecked > 0:
		p.Success(fmt.Sprintf("all %d numbers verified against source data", g.NumbersChecked))
	}
	if g.LLMComputedMath {
		p.Warning("summary contains arithmetic not produced by a compute step")
	}
}

func (p *Printer) step(s datatypes.StepReport) {
	line := fmt.Sprintf("step %d %s: %s", s.StepID, s.Tool, s.Status)
	switch {
	case s.Error != "":
		p.Error(line + " (" + s.Error + ")")
	case s.SkippedBy != 0:
		p.Warning(fmt.Sprintf("%s (after step %d failed)", line, s.SkippedBy))
	default:
		p.Success(line)
	}
}

func failedSteps(steps []datatypes.StepReport) []datatypes.StepReport {
	var out []datatypes.StepReport
	for _, s := range steps {
		if s.Error != "" || s.SkippedBy != 0 {
			out = append(out, s)
		}
	}
	return out
}

// chart draws one horizontal bar per data point, scaled to the largest
// magnitude.
func (p *Printer) chart(v *datatypes.VisualizationPayload) string {
	labelWidth := 0
	peak := 0.0
	for _, d := range v.Data {
		labelWidth = max(labelWidth, len(d.Label))
		peak = math.Max(peak, math.Abs(d.Value))
	}

	var b strings.Builder
	for _, d := range v.Data {
		n := 0
		if peak > 0 {
			n = int(math.Round(math.Abs(d.Value) / peak * chartWidth))
		}
		bar := strings.Repeat("█", n)
		if d.Value < 0 {
			bar = p.render(Styles.Error, bar)
		} else {
			bar = p.render(Styles.Success, bar)
		}
		fmt.Fprintf(&b, "  %-*s %s %s\n", labelWidth, d.Label, bar, FormatValue(v.Metric, d.Value))
	}
	return b.String()
}

// FormatValue renders a metric value for people. Margins and growth rates
// are percentages; EPS is per share; anything else is dollars, abbreviated
// from millions up.
func FormatValue(metric string, v float64) string {
	switch {
	case isPercentMetric(metric) && math.Abs(v) <= 1000:
		return fmt.Sprintf("%.2f%%", v)
	case metric == string(datatypes.QueryMetricEPS), strings.HasPrefix(metric, "eps"):
		return fmt.Sprintf("$%.2f", v)
	}

	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	switch {
	case v >= 1e12:
		return fmt.Sprintf("%s$%.2fT", sign, v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("%s$%.2fB", sign, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s$%.2fM", sign, v/1e6)
	}
	return sign + "$" + numbers.Sprintf("%.0f", v)
}

func isPercentMetric(metric string) bool {
	return strings.Contains(metric, "margin") || strings.Contains(metric, "growth")
}

func metricLabel(metric string) string {
	if metric == "" {
		return "Value"
	}
	words := strings.Split(metric, "_")
	for i, w := range words {
		if w == "eps" {
			words[i] = "EPS"
			continue
		}
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Company prints a registry entry.
func (p *Printer) Company(c datatypes.Company) error {
	if p.mode == ModeJSON {
		return p.JSON(c)
	}
	p.Box(c.Ticker, fmt.Sprintf("%s\nCIK %s", c.Name, c.CIK))
	return nil
}
