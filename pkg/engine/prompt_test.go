package engine

import (
	"strings"
	"testing"

	"github.com/responsa-ai/responsa/pkg/retrieval"
)

func TestRenderSystemPrompt(t *testing.T) {
	hits := []retrieval.Hit{
		{Text: "id: 1\ntitle: Education budget increase", Score: 2.1},
		{Text: "id: 3\ntitle: הרחבת תקציב החינוך", Score: 1.4},
	}
	out, err := renderSystemPrompt("decisions", 42, hits)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`"decisions"`,
		"contains 42 records",
		"Education budget increase",
		"הרחבת תקציב החינוך",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSystemPromptNoHits(t *testing.T) {
	out, err := renderSystemPrompt("decisions", 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No individual records matched") {
		t.Errorf("expected empty-context fallback:\n%s", out)
	}
	if !strings.Contains(out, "contains 7 records") {
		t.Errorf("expected total count even without hits:\n%s", out)
	}
}
