package token

import "testing"

func TestHeuristicEstimator_Estimate(t *testing.T) {
	estimator := NewHeuristicEstimator()

	tests := []struct {
		name string
		text string
		want int
	}{
		{
			name: "empty string",
			text: "",
			want: 0,
		},
		{
			name: "single word",
			text: "hello",
			// (5/4 + 1*1.3) / 2 = (1 + 1) / 2
			want: 1,
		},
		{
			name: "sentence",
			text: "hello world, this is a test",
			// chars 27/4=6, words 6*1.3=7 -> (6+7)/2=6
			want: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimator.Estimate(tt.text)
			if got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestHeuristicEstimator_EstimateTyped(t *testing.T) {
	estimator := NewHeuristicEstimator()
	text := "func main() { fmt.Println(42) }"

	plain := estimator.EstimateTyped(text, ContentTypeDocument)
	code := estimator.EstimateTyped(text, ContentTypeCode)
	structured := estimator.EstimateTyped(text, ContentTypeStructured)

	if code < plain {
		t.Errorf("code estimate %d should be >= document estimate %d", code, plain)
	}
	if structured < code {
		t.Errorf("structured estimate %d should be >= code estimate %d", structured, code)
	}
}

func TestHeuristicEstimator_ZeroRatio(t *testing.T) {
	estimator := &HeuristicEstimator{CharsPerToken: 0}
	if got := estimator.Estimate("some text here"); got <= 0 {
		t.Errorf("estimate with zero ratio should fall back to default, got %d", got)
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		path string
		want ContentType
	}{
		{"internal/server/handler.go", ContentTypeCode},
		{"internal/server/handler_test.go", ContentTypeTest},
		{"src/app.spec.ts", ContentTypeTest},
		{"tests/test_budget.py", ContentTypeTest},
		{"docs/design.md", ContentTypeDocument},
		{"config/app.yaml", ContentTypeStructured},
		{"schema.json", ContentTypeStructured},
		{"Makefile", ContentTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectContentType(tt.path); got != tt.want {
				t.Errorf("DetectContentType(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDefaultEstimator(t *testing.T) {
	estimator := DefaultEstimator()
	if estimator == nil {
		t.Fatal("DefaultEstimator returned nil")
	}
	if got := estimator.Estimate("hello world"); got <= 0 {
		t.Errorf("expected positive estimate, got %d", got)
	}
}
