package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ibkchat/insight/backend/pkg/logger"
)

// reportSystemPrompt fixes the shape of the synthesized document. The model
// must never invent facts that are not present in the supplied context.
const reportSystemPrompt = `You are an operations analyst for a B2B banking chatbot service.
From the aggregated interaction data supplied by the user, write a daily operations report in Korean, in Markdown, with exactly these seven sections:

1. 요약 (Executive Summary)
2. 일일 핵심 지표 (Daily KPI)
3. 카테고리별 성과 (Category Performance)
4. 실패 분석 (Failure Analysis)
5. 토큰 이상치 (Token Outliers)
6. 고가치 질문 (High-Value Questions)
7. 탐색 과제 (Exploration Topics)

Rules:
- Use only the facts present in the supplied data. Never fabricate numbers, categories or questions.
- If a section has no corresponding data, state that no data was collected for it.
- Keep each section concise; highlight anomalies and actionable findings.`

// ReportBuilder assembles the collected aggregate into an LLM context and
// synthesizes the final markdown document.
type ReportBuilder struct {
	completer Completer
}

func NewReportBuilder(completer Completer) *ReportBuilder {
	return &ReportBuilder{completer: completer}
}

// GenerateReport synthesizes the narrative document for one report day.
// An empty model response is a synthesis failure, not a degraded report.
func (b *ReportBuilder) GenerateReport(ctx context.Context, targetDate time.Time, data *CollectedReportData) (string, error) {
	contextText := b.buildContext(targetDate, data)

	logger.Infof("[ReportBuilder] Context length: %d chars", len(contextText))

	result, err := b.completer.Complete(ctx, []ChatMessage{
		{Role: RoleSystem, Content: reportSystemPrompt},
		{Role: RoleUser, Content: contextText},
	})
	if err != nil {
		return "", fmt.Errorf("report synthesis failed: %w", err)
	}

	if strings.TrimSpace(result.Content) == "" {
		return "", fmt.Errorf("LLM returned empty response")
	}

	return result.Content, nil
}

// buildContext renders one block per data category. Empty categories are
// omitted entirely rather than rendered as "no data".
func (b *ReportBuilder) buildContext(targetDate time.Time, data *CollectedReportData) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Chatbot interaction data for %s\n", targetDate.Format("2006-01-02")))

	if data.KPI.TotalRequests > 0 {
		sb.WriteString("\n## Daily KPI\n")
		sb.WriteString(fmt.Sprintf("- Total requests: %d (success %d / fail %d, success rate %.2f%%)\n",
			data.KPI.TotalRequests, data.KPI.SuccessCount, data.KPI.FailCount, data.KPI.SuccessRate))
		sb.WriteString(fmt.Sprintf("- Tokens: p50 %d / p90 %d / p99 %d, max %d, avg %.1f\n",
			data.KPI.TokenP50, data.KPI.TokenP90, data.KPI.TokenP99, data.KPI.MaxTokens, data.KPI.AvgTokens))
	}

	if len(data.CategorySuccess) > 0 {
		sb.WriteString("\n## Success rate by category\n")
		for _, cs := range data.CategorySuccess {
			sb.WriteString(fmt.Sprintf("- %s: %d requests, %.2f%% success\n", cs.Category, cs.Total, cs.SuccessRate))
		}
	}

	if len(data.CategorySamples) > 0 {
		sb.WriteString("\n## Representative questions by category\n")
		categories, grouped := groupSamplesByCategory(data.CategorySamples)
		for _, category := range categories {
			sb.WriteString(fmt.Sprintf("### %s\n", category))
			for _, q := range grouped[category] {
				sb.WriteString(fmt.Sprintf("- %s\n", q))
			}
		}
	}

	if len(data.Failures) > 0 {
		sb.WriteString("\n## Failure breakdown\n")
		for _, f := range data.Failures {
			sb.WriteString(fmt.Sprintf("- %s: %d failures\n", f.Category, f.FailCount))
			for _, q := range f.SampleQuestions {
				sb.WriteString(fmt.Sprintf("  - sample: %s\n", q))
			}
		}
	}

	if len(data.TokenOutliers) > 0 {
		sb.WriteString("\n## Token outliers\n")
		for _, o := range data.TokenOutliers {
			sb.WriteString(fmt.Sprintf("- [%d tokens] (%s) %s\n", o.TotalTokens, o.Category, o.Question))
		}
	}

	if len(data.HighValueQuestions) > 0 {
		sb.WriteString("\n## High-value questions\n")
		for _, hv := range data.HighValueQuestions {
			sb.WriteString(fmt.Sprintf("- [score %d, tags %s] %s\n",
				hv.Score, strings.Join(hv.MatchedTags, "/"), hv.Question))
		}
	}

	if len(data.ExploratorySamples) > 0 {
		sb.WriteString("\n## Uncategorized question samples\n")
		for _, e := range data.ExploratorySamples {
			sb.WriteString(fmt.Sprintf("- %s\n", e.Question))
		}
	}

	return sb.String()
}

// groupSamplesByCategory preserves the category order of first appearance so
// the assembled context is deterministic given the collected rows.
func groupSamplesByCategory(samples []CategorySample) ([]string, map[string][]string) {
	var order []string
	grouped := make(map[string][]string)
	for _, s := range samples {
		if _, seen := grouped[s.Category]; !seen {
			order = append(order, s.Category)
		}
		grouped[s.Category] = append(grouped[s.Category], s.Question)
	}
	return order, grouped
}
