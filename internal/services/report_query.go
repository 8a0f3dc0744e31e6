package services

import (
	"fmt"
	"time"
)

// Query shape parameters of the daily chat report. Field names, filters,
// limits and orderings are part of the collector's compatibility contract.
const (
	categorySuccessLimit   = 20
	categorySampleLimit    = 10
	failureCategoryLimit   = 10
	failureSampleLimit     = 5
	tokenOutlierThreshold  = 10000
	tokenOutlierLimit      = 20
	candidateMinLength     = 20
	candidateLimit         = 500
	exploratorySampleLimit = 100

	// Sentinel category value for questions the classifier could not place.
	uncategorizedSentinel = "미분류"
)

// ReportQueryBuilder produces the parameterized ClickHouse query text for the
// seven analytical shapes plus the row-count precheck. It holds no state
// beyond the source table name.
type ReportQueryBuilder struct {
	table string
}

func NewReportQueryBuilder(table string) *ReportQueryBuilder {
	if table == "" {
		table = "chat_logs"
	}
	return &ReportQueryBuilder{table: table}
}

// All shapes are scoped to one calendar day and to rows whose response
// classification is populated.
const scopeFilter = "created_at >= ? AND created_at < ? AND answer_status IS NOT NULL"

func dayArgs(start, end time.Time) []interface{} {
	return []interface{}{start, end}
}

// RowCountQuery counts the source log rows for the day (threshold precheck).
func (b *ReportQueryBuilder) RowCountQuery(start, end time.Time) (string, []interface{}) {
	q := fmt.Sprintf(`SELECT count() AS row_count FROM %s WHERE %s`, b.table, scopeFilter)
	return q, dayArgs(start, end)
}

// DailyKPIQuery returns the top-line counters and the token percentile ladder.
func (b *ReportQueryBuilder) DailyKPIQuery(start, end time.Time) (string, []interface{}) {
	q := fmt.Sprintf(`SELECT
    count() AS total_requests,
    countIf(answer_status = 'success') AS success_count,
    countIf(answer_status != 'success') AS fail_count,
    round(countIf(answer_status = 'success') / count() * 100, 2) AS success_rate,
    quantile(0.5)(total_tokens) AS token_p50,
    quantile(0.9)(total_tokens) AS token_p90,
    quantile(0.99)(total_tokens) AS token_p99,
    max(total_tokens) AS max_tokens,
    round(avg(total_tokens), 1) AS avg_tokens
FROM %s
WHERE %s`, b.table, scopeFilter)
	return q, dayArgs(start, end)
}

// CategorySuccessQuery groups by question category, top 20 by volume.
func (b *ReportQueryBuilder) CategorySuccessQuery(start, end time.Time) (string, []interface{}) {
	q := fmt.Sprintf(`SELECT
    category,
    count() AS total,
    countIf(answer_status = 'success') AS success_count,
    round(countIf(answer_status = 'success') / count() * 100, 2) AS success_rate
FROM %s
WHERE %s AND category IS NOT NULL
GROUP BY category
ORDER BY total DESC
LIMIT %d`, b.table, scopeFilter, categorySuccessLimit)
	return q, dayArgs(start, end)
}

// CategorySamplesQuery picks up to 10 random representative questions per category.
func (b *ReportQueryBuilder) CategorySamplesQuery(start, end time.Time) (string, []interface{}) {
	q := fmt.Sprintf(`SELECT category, question, total_tokens
FROM (
    SELECT
        category,
        question,
        total_tokens,
        row_number() OVER (PARTITION BY category ORDER BY rand()) AS rn
    FROM %s
    WHERE %s AND category IS NOT NULL
)
WHERE rn <= %d`, b.table, scopeFilter, categorySampleLimit)
	return q, dayArgs(start, end)
}

// FailureBreakdownQuery returns the top failure categories with sample questions.
func (b *ReportQueryBuilder) FailureBreakdownQuery(start, end time.Time) (string, []interface{}) {
	q := fmt.Sprintf(`SELECT
    category,
    count() AS fail_count,
    groupArray(%d)(question) AS sample_questions
FROM %s
WHERE %s AND answer_status != 'success'
GROUP BY category
ORDER BY fail_count DESC
LIMIT %d`, failureSampleLimit, b.table, scopeFilter, failureCategoryLimit)
	return q, dayArgs(start, end)
}

// TokenOutliersQuery finds token-burst requests above the fixed threshold.
func (b *ReportQueryBuilder) TokenOutliersQuery(start, end time.Time) (string, []interface{}) {
	q := fmt.Sprintf(`SELECT question, category, total_tokens, created_at
FROM %s
WHERE %s AND total_tokens > %d
ORDER BY total_tokens DESC
LIMIT %d`, b.table, scopeFilter, tokenOutlierThreshold, tokenOutlierLimit)
	return q, dayArgs(start, end)
}

// CandidateQuestionsQuery fetches the raw high-value candidate set for the scorer.
func (b *ReportQueryBuilder) CandidateQuestionsQuery(start, end time.Time) (string, []interface{}) {
	q := fmt.Sprintf(`SELECT question, category, total_tokens, lengthUTF8(question) AS text_length
FROM %s
WHERE %s AND lengthUTF8(question) > %d
ORDER BY text_length DESC
LIMIT %d`, b.table, scopeFilter, candidateMinLength, candidateLimit)
	return q, dayArgs(start, end)
}

// ExploratorySamplesQuery samples uncategorized questions for cluster exploration.
func (b *ReportQueryBuilder) ExploratorySamplesQuery(start, end time.Time) (string, []interface{}) {
	q := fmt.Sprintf(`SELECT question, total_tokens
FROM %s
WHERE %s AND (category IS NULL OR category = '%s')
ORDER BY rand()
LIMIT %d`, b.table, scopeFilter, uncategorizedSentinel, exploratorySampleLimit)
	return q, dayArgs(start, end)
}
