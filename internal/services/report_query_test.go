package services

import (
	"strings"
	"testing"
	"time"
)

var (
	testWindowStart = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	testWindowEnd   = testWindowStart.Add(24 * time.Hour)
)

func TestNewReportQueryBuilderDefaultTable(t *testing.T) {
	b := NewReportQueryBuilder("")
	q, _ := b.RowCountQuery(testWindowStart, testWindowEnd)
	if !strings.Contains(q, "FROM chat_logs") {
		t.Errorf("expected default table chat_logs, got query: %s", q)
	}

	b = NewReportQueryBuilder("custom_logs")
	q, _ = b.RowCountQuery(testWindowStart, testWindowEnd)
	if !strings.Contains(q, "FROM custom_logs") {
		t.Errorf("expected custom table, got query: %s", q)
	}
}

func TestAllQueriesShareDayScope(t *testing.T) {
	b := NewReportQueryBuilder("chat_logs")

	queries := map[string]func(time.Time, time.Time) (string, []interface{}){
		"row_count":        b.RowCountQuery,
		"daily_kpi":        b.DailyKPIQuery,
		"category_success": b.CategorySuccessQuery,
		"category_samples": b.CategorySamplesQuery,
		"failures":         b.FailureBreakdownQuery,
		"token_outliers":   b.TokenOutliersQuery,
		"candidates":       b.CandidateQuestionsQuery,
		"exploratory":      b.ExploratorySamplesQuery,
	}

	for name, fn := range queries {
		q, args := fn(testWindowStart, testWindowEnd)
		if !strings.Contains(q, "created_at >= ? AND created_at < ?") {
			t.Errorf("%s: missing day window filter", name)
		}
		if !strings.Contains(q, "answer_status IS NOT NULL") {
			t.Errorf("%s: missing answer_status scope filter", name)
		}
		if len(args) != 2 {
			t.Errorf("%s: expected 2 args, got %d", name, len(args))
			continue
		}
		if args[0] != testWindowStart || args[1] != testWindowEnd {
			t.Errorf("%s: args = %v, want window bounds", name, args)
		}
	}
}

func TestDailyKPIQueryShape(t *testing.T) {
	b := NewReportQueryBuilder("chat_logs")
	q, _ := b.DailyKPIQuery(testWindowStart, testWindowEnd)

	for _, field := range []string{
		"total_requests", "success_count", "fail_count", "success_rate",
		"token_p50", "token_p90", "token_p99", "max_tokens", "avg_tokens",
	} {
		if !strings.Contains(q, field) {
			t.Errorf("KPI query missing field %s", field)
		}
	}
	for _, expr := range []string{
		"quantile(0.5)(total_tokens)",
		"quantile(0.9)(total_tokens)",
		"quantile(0.99)(total_tokens)",
		"countIf(answer_status = 'success')",
	} {
		if !strings.Contains(q, expr) {
			t.Errorf("KPI query missing expression %s", expr)
		}
	}
}

func TestCategorySuccessQueryShape(t *testing.T) {
	b := NewReportQueryBuilder("chat_logs")
	q, _ := b.CategorySuccessQuery(testWindowStart, testWindowEnd)

	if !strings.Contains(q, "GROUP BY category") {
		t.Error("expected GROUP BY category")
	}
	if !strings.Contains(q, "ORDER BY total DESC") {
		t.Error("expected volume-descending order")
	}
	if !strings.Contains(q, "LIMIT 20") {
		t.Error("expected limit 20")
	}
	if !strings.Contains(q, "category IS NOT NULL") {
		t.Error("expected uncategorized rows excluded")
	}
}

func TestCategorySamplesQueryShape(t *testing.T) {
	b := NewReportQueryBuilder("chat_logs")
	q, _ := b.CategorySamplesQuery(testWindowStart, testWindowEnd)

	if !strings.Contains(q, "row_number() OVER (PARTITION BY category ORDER BY rand())") {
		t.Error("expected per-category random window ranking")
	}
	if !strings.Contains(q, "rn <= 10") {
		t.Error("expected 10 samples per category")
	}
}

func TestFailureBreakdownQueryShape(t *testing.T) {
	b := NewReportQueryBuilder("chat_logs")
	q, _ := b.FailureBreakdownQuery(testWindowStart, testWindowEnd)

	if !strings.Contains(q, "groupArray(5)(question)") {
		t.Error("expected 5 sample questions per failure category")
	}
	if !strings.Contains(q, "answer_status != 'success'") {
		t.Error("expected failure-only filter")
	}
	if !strings.Contains(q, "ORDER BY fail_count DESC") {
		t.Error("expected fail-count-descending order")
	}
	if !strings.Contains(q, "LIMIT 10") {
		t.Error("expected limit 10")
	}
}

func TestTokenOutliersQueryShape(t *testing.T) {
	b := NewReportQueryBuilder("chat_logs")
	q, _ := b.TokenOutliersQuery(testWindowStart, testWindowEnd)

	if !strings.Contains(q, "total_tokens > 10000") {
		t.Error("expected fixed outlier threshold")
	}
	if !strings.Contains(q, "ORDER BY total_tokens DESC") {
		t.Error("expected token-descending order")
	}
	if !strings.Contains(q, "LIMIT 20") {
		t.Error("expected limit 20")
	}
}

func TestCandidateQuestionsQueryShape(t *testing.T) {
	b := NewReportQueryBuilder("chat_logs")
	q, _ := b.CandidateQuestionsQuery(testWindowStart, testWindowEnd)

	if !strings.Contains(q, "lengthUTF8(question) > 20") {
		t.Error("expected minimum question length filter")
	}
	if !strings.Contains(q, "LIMIT 500") {
		t.Error("expected candidate cap of 500")
	}
	if !strings.Contains(q, "ORDER BY text_length DESC") {
		t.Error("expected length-descending order")
	}
}

func TestExploratorySamplesQueryShape(t *testing.T) {
	b := NewReportQueryBuilder("chat_logs")
	q, _ := b.ExploratorySamplesQuery(testWindowStart, testWindowEnd)

	if !strings.Contains(q, "category IS NULL OR category = '미분류'") {
		t.Error("expected uncategorized filter with sentinel value")
	}
	if !strings.Contains(q, "ORDER BY rand()") {
		t.Error("expected random sampling")
	}
	if !strings.Contains(q, "LIMIT 100") {
		t.Error("expected sample cap of 100")
	}
}
