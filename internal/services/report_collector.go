package services

import (
	"context"
	"sync"
	"time"

	"github.com/ibkchat/insight/backend/pkg/logger"
	"github.com/spf13/cast"
)

// DailyKPI is the top-line counter block of one report day.
type DailyKPI struct {
	TotalRequests int64   `json:"total_requests"`
	SuccessCount  int64   `json:"success_count"`
	FailCount     int64   `json:"fail_count"`
	SuccessRate   float64 `json:"success_rate"`
	TokenP50      int64   `json:"token_p50"`
	TokenP90      int64   `json:"token_p90"`
	TokenP99      int64   `json:"token_p99"`
	MaxTokens     int64   `json:"max_tokens"`
	AvgTokens     float64 `json:"avg_tokens"`
}

type CategorySuccess struct {
	Category     string  `json:"category"`
	Total        int64   `json:"total"`
	SuccessCount int64   `json:"success_count"`
	SuccessRate  float64 `json:"success_rate"`
}

type CategorySample struct {
	Category    string `json:"category"`
	Question    string `json:"question"`
	TotalTokens int64  `json:"total_tokens"`
}

type FailureBreakdown struct {
	Category        string   `json:"category"`
	FailCount       int64    `json:"fail_count"`
	SampleQuestions []string `json:"sample_questions"`
}

type TokenOutlier struct {
	Question    string `json:"question"`
	Category    string `json:"category"`
	TotalTokens int64  `json:"total_tokens"`
	CreatedAt   string `json:"created_at"`
}

// CandidateQuestion is a raw scorer input row.
type CandidateQuestion struct {
	Question    string `json:"question"`
	Category    string `json:"category"`
	TotalTokens int64  `json:"total_tokens"`
	TextLength  int64  `json:"text_length"`
}

type ExploratorySample struct {
	Question    string `json:"question"`
	TotalTokens int64  `json:"total_tokens"`
}

// CollectedReportData is the in-memory aggregate for one generation run. It
// is owned by that run and discarded once the report is persisted.
// HighValueQuestions is filled in by the orchestrator after scoring.
type CollectedReportData struct {
	KPI                DailyKPI
	CategorySuccess    []CategorySuccess
	CategorySamples    []CategorySample
	Failures           []FailureBreakdown
	TokenOutliers      []TokenOutlier
	Candidates         []CandidateQuestion
	HighValueQuestions []ScoredQuestion
	ExploratorySamples []ExploratorySample
}

// ReportCollector executes the aggregation queries against the analytics
// engine and coerces the loosely-typed rows into report records.
type ReportCollector struct {
	querier Querier
	queries *ReportQueryBuilder
}

func NewReportCollector(querier Querier, queries *ReportQueryBuilder) *ReportCollector {
	return &ReportCollector{querier: querier, queries: queries}
}

// CountRows runs the row-count precheck. Unlike the section fetches this
// returns its error: a broken precheck fails the run instead of silently
// skipping the day.
func (c *ReportCollector) CountRows(ctx context.Context, start, end time.Time) (int64, error) {
	query, args := c.queries.RowCountQuery(start, end)
	rows, err := c.querier.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["row_count"]), nil
}

// CollectAll runs the seven section fetches concurrently. Each fetch recovers
// to its zero value on error, so a broken query blanks its own section only;
// CollectAll itself never fails.
func (c *ReportCollector) CollectAll(ctx context.Context, start, end time.Time) *CollectedReportData {
	data := &CollectedReportData{}

	var wg sync.WaitGroup
	wg.Add(7)

	go func() {
		defer wg.Done()
		data.KPI = c.fetchDailyKPI(ctx, start, end)
	}()
	go func() {
		defer wg.Done()
		data.CategorySuccess = c.fetchCategorySuccess(ctx, start, end)
	}()
	go func() {
		defer wg.Done()
		data.CategorySamples = c.fetchCategorySamples(ctx, start, end)
	}()
	go func() {
		defer wg.Done()
		data.Failures = c.fetchFailureBreakdown(ctx, start, end)
	}()
	go func() {
		defer wg.Done()
		data.TokenOutliers = c.fetchTokenOutliers(ctx, start, end)
	}()
	go func() {
		defer wg.Done()
		data.Candidates = c.fetchCandidates(ctx, start, end)
	}()
	go func() {
		defer wg.Done()
		data.ExploratorySamples = c.fetchExploratorySamples(ctx, start, end)
	}()

	wg.Wait()
	return data
}

// fetchRows wraps one section query with the failure-isolation contract:
// errors are logged and surfaced as an empty row set.
func (c *ReportCollector) fetchRows(ctx context.Context, section, query string, args []interface{}) []map[string]interface{} {
	rows, err := c.querier.Query(ctx, query, args...)
	if err != nil {
		logger.Error().Err(err).Str("section", section).Msg("report section query failed, section will be empty")
		return nil
	}
	return rows
}

func (c *ReportCollector) fetchDailyKPI(ctx context.Context, start, end time.Time) DailyKPI {
	query, args := c.queries.DailyKPIQuery(start, end)
	rows := c.fetchRows(ctx, "daily_kpi", query, args)
	if len(rows) == 0 {
		return DailyKPI{}
	}

	row := rows[0]
	return DailyKPI{
		TotalRequests: toInt64(row["total_requests"]),
		SuccessCount:  toInt64(row["success_count"]),
		FailCount:     toInt64(row["fail_count"]),
		SuccessRate:   toFloat64(row["success_rate"]),
		TokenP50:      toInt64(row["token_p50"]),
		TokenP90:      toInt64(row["token_p90"]),
		TokenP99:      toInt64(row["token_p99"]),
		MaxTokens:     toInt64(row["max_tokens"]),
		AvgTokens:     toFloat64(row["avg_tokens"]),
	}
}

func (c *ReportCollector) fetchCategorySuccess(ctx context.Context, start, end time.Time) []CategorySuccess {
	query, args := c.queries.CategorySuccessQuery(start, end)
	rows := c.fetchRows(ctx, "category_success", query, args)

	result := make([]CategorySuccess, 0, len(rows))
	for _, row := range rows {
		result = append(result, CategorySuccess{
			Category:     toString(row["category"]),
			Total:        toInt64(row["total"]),
			SuccessCount: toInt64(row["success_count"]),
			SuccessRate:  toFloat64(row["success_rate"]),
		})
	}
	return result
}

func (c *ReportCollector) fetchCategorySamples(ctx context.Context, start, end time.Time) []CategorySample {
	query, args := c.queries.CategorySamplesQuery(start, end)
	rows := c.fetchRows(ctx, "category_samples", query, args)

	result := make([]CategorySample, 0, len(rows))
	for _, row := range rows {
		result = append(result, CategorySample{
			Category:    toString(row["category"]),
			Question:    toString(row["question"]),
			TotalTokens: toInt64(row["total_tokens"]),
		})
	}
	return result
}

func (c *ReportCollector) fetchFailureBreakdown(ctx context.Context, start, end time.Time) []FailureBreakdown {
	query, args := c.queries.FailureBreakdownQuery(start, end)
	rows := c.fetchRows(ctx, "failure_breakdown", query, args)

	result := make([]FailureBreakdown, 0, len(rows))
	for _, row := range rows {
		result = append(result, FailureBreakdown{
			Category:        toString(row["category"]),
			FailCount:       toInt64(row["fail_count"]),
			SampleQuestions: toStringSlice(row["sample_questions"]),
		})
	}
	return result
}

func (c *ReportCollector) fetchTokenOutliers(ctx context.Context, start, end time.Time) []TokenOutlier {
	query, args := c.queries.TokenOutliersQuery(start, end)
	rows := c.fetchRows(ctx, "token_outliers", query, args)

	result := make([]TokenOutlier, 0, len(rows))
	for _, row := range rows {
		result = append(result, TokenOutlier{
			Question:    toString(row["question"]),
			Category:    toString(row["category"]),
			TotalTokens: toInt64(row["total_tokens"]),
			CreatedAt:   toString(row["created_at"]),
		})
	}
	return result
}

func (c *ReportCollector) fetchCandidates(ctx context.Context, start, end time.Time) []CandidateQuestion {
	query, args := c.queries.CandidateQuestionsQuery(start, end)
	rows := c.fetchRows(ctx, "candidate_questions", query, args)

	result := make([]CandidateQuestion, 0, len(rows))
	for _, row := range rows {
		result = append(result, CandidateQuestion{
			Question:    toString(row["question"]),
			Category:    toString(row["category"]),
			TotalTokens: toInt64(row["total_tokens"]),
			TextLength:  toInt64(row["text_length"]),
		})
	}
	return result
}

func (c *ReportCollector) fetchExploratorySamples(ctx context.Context, start, end time.Time) []ExploratorySample {
	query, args := c.queries.ExploratorySamplesQuery(start, end)
	rows := c.fetchRows(ctx, "exploratory_samples", query, args)

	result := make([]ExploratorySample, 0, len(rows))
	for _, row := range rows {
		result = append(result, ExploratorySample{
			Question:    toString(row["question"]),
			TotalTokens: toInt64(row["total_tokens"]),
		})
	}
	return result
}

// --- row value coercion ---
// The engine may hand numeric columns back as strings, floats or wide ints
// depending on the function that produced them. Everything funnels through
// cast with zero-value defaults.

func toInt64(v interface{}) int64 {
	n, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return int64(n)
}

func toFloat64(v interface{}) float64 {
	n, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return n
}

func toString(v interface{}) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

func toStringSlice(v interface{}) []string {
	if v == nil {
		return nil
	}
	if ss, ok := v.([]string); ok {
		return ss
	}
	items, err := cast.ToSliceE(v)
	if err != nil {
		// Single scalar value, keep it as a one-element sample list.
		if s := toString(v); s != "" {
			return []string{s}
		}
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s := toString(item); s != "" {
			result = append(result, s)
		}
	}
	return result
}
