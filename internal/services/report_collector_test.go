package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeQuerier routes each query to a canned response keyed on a substring of
// the query text. Unmatched queries return the fallback error.
type fakeQuerier struct {
	responses map[string][]map[string]interface{}
	failOn    map[string]error
	calls     int
}

func (f *fakeQuerier) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	f.calls++
	for marker, err := range f.failOn {
		if strings.Contains(query, marker) {
			return nil, err
		}
	}
	for marker, rows := range f.responses {
		if strings.Contains(query, marker) {
			return rows, nil
		}
	}
	return nil, nil
}

func newTestCollector(q Querier) *ReportCollector {
	return NewReportCollector(q, NewReportQueryBuilder("chat_logs"))
}

func TestCountRows(t *testing.T) {
	q := &fakeQuerier{
		responses: map[string][]map[string]interface{}{
			"count() AS row_count": {{"row_count": uint64(1234)}},
		},
	}

	n, err := newTestCollector(q).CountRows(context.Background(), testWindowStart, testWindowEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1234 {
		t.Errorf("row count = %d, want 1234", n)
	}
}

func TestCountRowsEmptyResult(t *testing.T) {
	q := &fakeQuerier{}
	n, err := newTestCollector(q).CountRows(context.Background(), testWindowStart, testWindowEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("row count = %d, want 0", n)
	}
}

func TestCountRowsPropagatesError(t *testing.T) {
	q := &fakeQuerier{
		failOn: map[string]error{"row_count": errors.New("connection refused")},
	}

	_, err := newTestCollector(q).CountRows(context.Background(), testWindowStart, testWindowEnd)
	if err == nil {
		t.Fatal("expected precheck error to propagate")
	}
}

func TestCollectAll(t *testing.T) {
	q := &fakeQuerier{
		responses: map[string][]map[string]interface{}{
			"total_requests": {{
				"total_requests": uint64(500),
				"success_count":  uint64(450),
				"fail_count":     uint64(50),
				"success_rate":   90.0,
				"token_p50":      850.0,
				"token_p90":      2300.0,
				"token_p99":      8100.0,
				"max_tokens":     uint64(15000),
				"avg_tokens":     1204.5,
			}},
			"GROUP BY category\nORDER BY total": {
				{"category": "대출", "total": uint64(200), "success_count": uint64(190), "success_rate": 95.0},
				{"category": "예금", "total": uint64(100), "success_count": uint64(80), "success_rate": 80.0},
			},
			"rn <= 10": {
				{"category": "대출", "question": "대출 한도가 궁금해요", "total_tokens": uint64(300)},
			},
			"groupArray": {
				{"category": "환전", "fail_count": uint64(12), "sample_questions": []interface{}{"질문1", "질문2"}},
			},
			"total_tokens > 10000": {
				{"question": "긴 질문", "category": "대출", "total_tokens": uint64(12000), "created_at": "2025-03-10 11:22:33"},
			},
			"text_length": {
				{"question": "연체하면 왜 위험한가요, 자세히 알려주세요", "category": "대출", "total_tokens": uint64(800), "text_length": uint64(23)},
			},
			"ORDER BY rand()\nLIMIT 100": {
				{"question": "이상한 질문", "total_tokens": uint64(50)},
			},
		},
	}

	data := newTestCollector(q).CollectAll(context.Background(), testWindowStart, testWindowEnd)

	if data.KPI.TotalRequests != 500 || data.KPI.SuccessRate != 90.0 || data.KPI.TokenP99 != 8100 {
		t.Errorf("unexpected KPI: %+v", data.KPI)
	}
	if len(data.CategorySuccess) != 2 || data.CategorySuccess[0].Category != "대출" {
		t.Errorf("unexpected category success: %+v", data.CategorySuccess)
	}
	if len(data.CategorySamples) != 1 || data.CategorySamples[0].TotalTokens != 300 {
		t.Errorf("unexpected samples: %+v", data.CategorySamples)
	}
	if len(data.Failures) != 1 || len(data.Failures[0].SampleQuestions) != 2 {
		t.Errorf("unexpected failures: %+v", data.Failures)
	}
	if len(data.TokenOutliers) != 1 || data.TokenOutliers[0].TotalTokens != 12000 {
		t.Errorf("unexpected outliers: %+v", data.TokenOutliers)
	}
	if len(data.Candidates) != 1 || data.Candidates[0].TextLength != 23 {
		t.Errorf("unexpected candidates: %+v", data.Candidates)
	}
	if len(data.ExploratorySamples) != 1 {
		t.Errorf("unexpected exploratory samples: %+v", data.ExploratorySamples)
	}
	if q.calls != 7 {
		t.Errorf("expected 7 section queries, got %d", q.calls)
	}
}

func TestCollectAllIsolatesSectionFailure(t *testing.T) {
	q := &fakeQuerier{
		responses: map[string][]map[string]interface{}{
			"total_requests": {{
				"total_requests": uint64(500),
				"success_count":  uint64(450),
				"fail_count":     uint64(50),
				"success_rate":   90.0,
			}},
			"text_length": {
				{"question": "연체하면 왜 위험한가요", "total_tokens": uint64(800), "text_length": uint64(21)},
			},
		},
		failOn: map[string]error{
			"groupArray":           errors.New("table corrupted"),
			"total_tokens > 10000": errors.New("timeout"),
		},
	}

	data := newTestCollector(q).CollectAll(context.Background(), testWindowStart, testWindowEnd)

	// Broken sections come back empty
	if len(data.Failures) != 0 {
		t.Errorf("failed section should be empty, got %+v", data.Failures)
	}
	if len(data.TokenOutliers) != 0 {
		t.Errorf("failed section should be empty, got %+v", data.TokenOutliers)
	}
	// Healthy sections are unaffected
	if data.KPI.TotalRequests != 500 {
		t.Errorf("healthy KPI section lost: %+v", data.KPI)
	}
	if len(data.Candidates) != 1 {
		t.Errorf("healthy candidates section lost: %+v", data.Candidates)
	}
}

func TestRowCoercion(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  int64
	}{
		{"uint64", uint64(42), 42},
		{"int", 42, 42},
		{"float64", 42.9, 42},
		{"numeric string", "42", 42},
		{"nil", nil, 0},
		{"garbage", struct{}{}, 0},
		{"non numeric string", "abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toInt64(tt.value); got != tt.want {
				t.Errorf("toInt64(%v) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}

	if got := toFloat64("3.5"); got != 3.5 {
		t.Errorf("toFloat64 = %v, want 3.5", got)
	}
	if got := toFloat64(nil); got != 0 {
		t.Errorf("toFloat64(nil) = %v, want 0", got)
	}
	if got := toString(123); got != "123" {
		t.Errorf("toString(123) = %q", got)
	}
	if got := toString(nil); got != "" {
		t.Errorf("toString(nil) = %q, want empty", got)
	}
}

func TestToStringSlice(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  []string
	}{
		{"nil", nil, nil},
		{"string slice", []string{"a", "b"}, []string{"a", "b"}},
		{"interface slice", []interface{}{"a", "b"}, []string{"a", "b"}},
		{"mixed slice drops empties", []interface{}{"a", nil, "b"}, []string{"a", "b"}},
		{"scalar wrapped", "single", []string{"single"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toStringSlice(tt.value)
			if len(got) != len(tt.want) {
				t.Fatalf("toStringSlice(%v) = %v, want %v", tt.value, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("toStringSlice(%v)[%d] = %q, want %q", tt.value, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// CollectAll must stay bounded even when a section hangs on the context.
func TestCollectAllHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	q := &ctxQuerier{}
	done := make(chan struct{})
	go func() {
		newTestCollector(q).CollectAll(ctx, testWindowStart, testWindowEnd)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CollectAll did not return after context timeout")
	}
}

type ctxQuerier struct{}

func (q *ctxQuerier) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
