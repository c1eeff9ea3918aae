package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/jmercer/sprintdesk/internal/config"
)

func TestParseSprints(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"4,5,6", []string{"4", "5", "6"}},
		{" 4 , 5 ", []string{"4", "5"}},
		{"4,,5,", []string{"4", "5"}},
		{"", nil},
		{" , ", nil},
	}
	for _, c := range cases {
		if got := parseSprints(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("parseSprints(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestRunReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tools/fetch_sprint_issues" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sprint, _ := body.Arguments["sprint"].(string)
		json.NewEncoder(w).Encode(map[string]any{"issues": []map[string]any{
			{"key": "SD-" + sprint, "status": "Done", "story_points": 3},
		}})
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.ToolService.BaseURL = srv.URL

	var out bytes.Buffer
	if err := runReport(cfg, []string{"4", "5"}, "", "", &out); err != nil {
		t.Fatalf("runReport: %v", err)
	}

	text := out.String()
	for _, want := range []string{"2 sprints", "== 4 ==", "== 5 ==", "1 issues, 3 points"} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}
}

func TestRunReportRequiresToolService(t *testing.T) {
	var out bytes.Buffer
	err := runReport(config.Default(), []string{"4"}, "", "", &out)
	if err == nil || !strings.Contains(err.Error(), "tool_service.base_url") {
		t.Fatalf("err = %v", err)
	}
}
