package services

import (
	"reflect"
	"testing"
)

func TestSystemConfigGetSet(t *testing.T) {
	db := setupReportTestDB(t)
	svc := NewSystemConfigService(db)

	if _, err := svc.Get("missing"); err == nil {
		t.Error("expected error for missing key")
	}

	if err := svc.Set("chat_report_time", "09:30"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := svc.Get("chat_report_time")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != "09:30" {
		t.Errorf("value = %q, want 09:30", value)
	}

	// Set on an existing key updates in place
	if err := svc.Set("chat_report_time", "10:00"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if got := svc.GetWithDefault("chat_report_time", "08:00"); got != "10:00" {
		t.Errorf("value after update = %q, want 10:00", got)
	}
}

func TestSystemConfigDefaults(t *testing.T) {
	db := setupReportTestDB(t)
	svc := NewSystemConfigService(db)

	if got := svc.GetWithDefault("missing", "fallback"); got != "fallback" {
		t.Errorf("GetWithDefault = %q, want fallback", got)
	}
	if got := svc.GetBool("missing", true); got != true {
		t.Error("GetBool should return default for missing key")
	}
	if got := svc.GetInt("missing", 42); got != 42 {
		t.Errorf("GetInt = %d, want 42", got)
	}
}

func TestSystemConfigGetBool(t *testing.T) {
	db := setupReportTestDB(t)
	svc := NewSystemConfigService(db)

	svc.Set("chat_report_enabled", "true")
	if !svc.GetBool("chat_report_enabled", false) {
		t.Error("expected true")
	}
	svc.Set("chat_report_enabled", "false")
	if svc.GetBool("chat_report_enabled", true) {
		t.Error("expected false")
	}
	// Anything but "true" is false
	svc.Set("chat_report_enabled", "yes")
	if svc.GetBool("chat_report_enabled", true) {
		t.Error("non-true value should read as false")
	}
}

func TestSystemConfigGetUintList(t *testing.T) {
	db := setupReportTestDB(t)
	svc := NewSystemConfigService(db)

	tests := []struct {
		name  string
		value string
		want  []uint
	}{
		{"empty", "", nil},
		{"single", "3", []uint{3}},
		{"multiple", "1,2,3", []uint{1, 2, 3}},
		{"spaces", " 1 , 2 ", []uint{1, 2}},
		{"invalid parts skipped", "1,abc,3", []uint{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.Set("chat_report_im_bot_ids", tt.value)
			got := svc.GetUintList("chat_report_im_bot_ids")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetUintList(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	if got := svc.GetUintList("missing"); got != nil {
		t.Errorf("missing key should give nil, got %v", got)
	}
}
