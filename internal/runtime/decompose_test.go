package runtime

import "testing"

func TestParseDecompositionValidJSON(t *testing.T) {
	text := `Here is my plan:
{"subtasks": [{"title": "Research", "description": "look into it", "specialization": "research"}]}
Done.`
	d := parseDecomposition(text, "do the thing")
	if len(d.Subtasks) != 1 || d.Subtasks[0].Title != "Research" {
		t.Fatalf("unexpected decomposition: %+v", d)
	}
}

func TestParseDecompositionFallsBackOnMissingJSON(t *testing.T) {
	d := parseDecomposition("no json object here at all", "do the thing")
	if len(d.Subtasks) != 1 {
		t.Fatalf("expected single fallback subtask, got %d", len(d.Subtasks))
	}
	if d.Subtasks[0].Description != "do the thing" {
		t.Fatalf("expected fallback to carry the whole task as description, got %q", d.Subtasks[0].Description)
	}
}

func TestParseDecompositionFallsBackOnMalformedJSON(t *testing.T) {
	d := parseDecomposition(`{"subtasks": [{"title": "broken"`, "do the thing")
	if len(d.Subtasks) != 1 || d.Subtasks[0].Title != "Complete task" {
		t.Fatalf("expected fallback decomposition, got %+v", d)
	}
}

func TestParseDecompositionFallsBackOnEmptySubtasks(t *testing.T) {
	d := parseDecomposition(`{"subtasks": []}`, "do the thing")
	if len(d.Subtasks) != 1 || d.Subtasks[0].Title != "Complete task" {
		t.Fatalf("expected fallback decomposition for empty subtasks, got %+v", d)
	}
}

func TestExtractFirstJSONObjectIgnoresBracesInsideStrings(t *testing.T) {
	text := `prefix {"title": "has a } brace inside", "n": 1} suffix`
	raw, ok := extractFirstJSONObject(text)
	if !ok {
		t.Fatalf("expected to find a balanced object")
	}
	if raw != `{"title": "has a } brace inside", "n": 1}` {
		t.Fatalf("got %q", raw)
	}
}

func TestExtractFirstJSONObjectNoOpenBrace(t *testing.T) {
	_, ok := extractFirstJSONObject("nothing to see here")
	if ok {
		t.Fatalf("expected no object found")
	}
}
