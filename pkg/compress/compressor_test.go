package compress

import (
	"strings"
	"testing"

	"github.com/easyops/agentcontext-go/pkg/token"
)

const sampleCode = `package sample

import (
	"fmt"
	"strings"
)

// Greet 打招呼
func Greet(name string) string {
	if name == "" {
		name = "world"
	}
	message := fmt.Sprintf("hello %s", name)
	return strings.ToUpper(message)
}

func Farewell(name string) string {
	if name == "" {
		return "bye"
	}
	return "bye " + name
}
`

const sampleTest = `package sample

import "testing"

func TestGreet(t *testing.T) {
	got := Greet("go")
	if got != "HELLO GO" {
		t.Errorf("got %q", got)
	}
	if Greet("") == "" {
		t.Error("empty name should default")
	}
}

func TestFarewell(t *testing.T) {
	if Farewell("") != "bye" {
		t.Error("unexpected farewell")
	}
}
`

const sampleJSON = `{
	"server": {
		"host": "internal-gateway.production.svc.cluster.local",
		"port": 8080,
		"description": "primary ingress endpoint for the assembly service, fronted by the regional load balancer",
		"tls": {"cert": "/etc/certs/gateway-fullchain.pem", "key": "/etc/certs/gateway-privkey.pem"}
	},
	"features": ["adaptive-budgeting", "predictive-warming", "structural-compression", "pattern-mining"],
	"limits": {
		"max_entries": 1000,
		"max_memory_bytes": 104857600,
		"default_ttl_seconds": 3600,
		"warm_queue_depth": 64
	},
	"debug": false
}`

func TestCompress_Monotonicity(t *testing.T) {
	compressor := NewCompressor()

	inputs := []struct {
		name        string
		content     string
		contentType token.ContentType
	}{
		{"code", sampleCode, token.ContentTypeCode},
		{"test", sampleTest, token.ContentTypeTest},
		{"json", sampleJSON, token.ContentTypeStructured},
		{"prose", "# Title\n\nFirst paragraph here. More text.\n\nSecond paragraph.\n\n## Sub\n\nDetails follow.", token.ContentTypeDocument},
		{"other", strings.Repeat("some line of plain text\n", 40), token.ContentTypeOther},
	}

	levels := []Level{LevelNone, LevelLow, LevelModerate, LevelHigh, LevelExtreme}

	for _, input := range inputs {
		t.Run(input.name, func(t *testing.T) {
			previous := -1
			for _, level := range levels {
				result := compressor.Compress(input.content, input.contentType, level, 0)
				if previous >= 0 && result.Tokens > previous {
					t.Errorf("level %s produced %d tokens, more than previous level's %d",
						level, result.Tokens, previous)
				}
				previous = result.Tokens
			}
		})
	}
}

func TestCompress_LowStripsCommentsAndBlanks(t *testing.T) {
	compressor := NewCompressor()

	result := compressor.Compress(sampleCode, token.ContentTypeCode, LevelLow, 0)
	if strings.Contains(result.Content, "// Greet") {
		t.Error("low level should strip comment lines")
	}
	if strings.Contains(result.Content, "\n\n") {
		t.Error("low level should strip blank lines")
	}
	if !strings.Contains(result.Content, "message := fmt.Sprintf") {
		t.Error("low level should keep full bodies")
	}
}

func TestCompress_ModerateKeepsSignatures(t *testing.T) {
	compressor := NewCompressor()

	result := compressor.Compress(sampleCode, token.ContentTypeCode, LevelModerate, 0)
	if !strings.Contains(result.Content, "func Greet(name string) string {") {
		t.Error("moderate level should keep signatures")
	}
	if !strings.Contains(result.Content, `"fmt"`) {
		t.Error("moderate level should preserve imports")
	}
	if strings.Contains(result.Content, "return strings.ToUpper(message)") {
		t.Error("moderate level should not keep full bodies")
	}
}

func TestCompress_HighAnnotatesCounts(t *testing.T) {
	compressor := NewCompressor()

	result := compressor.Compress(sampleTest, token.ContentTypeTest, LevelHigh, 0)
	if !strings.Contains(result.Content, "assertions)") {
		t.Errorf("high level should annotate assertion counts, got:\n%s", result.Content)
	}
	if strings.Contains(result.Content, "t.Errorf") {
		t.Error("high level should drop bodies")
	}
}

func TestCompress_StructuredSchemaSkeleton(t *testing.T) {
	compressor := NewCompressor()

	result := compressor.Compress(sampleJSON, token.ContentTypeStructured, LevelModerate, 0)
	if !strings.Contains(result.Content, "server") {
		t.Error("schema skeleton should keep top-level keys")
	}
	if strings.Contains(result.Content, "internal-gateway") {
		t.Error("schema skeleton should drop leaf values")
	}
}

func TestCompress_MalformedStructuredFallsBack(t *testing.T) {
	compressor := NewCompressor()

	malformed := "{{{ not json\n\tnor: yaml: [unbalanced"
	result := compressor.Compress(malformed, token.ContentTypeStructured, LevelModerate, 0)

	if !result.Fallback {
		t.Error("malformed input should fall back to text strategy")
	}
	if result.Content == "" {
		t.Error("fallback should still produce content")
	}
}

func TestCompress_TargetTruncationKeepsMarker(t *testing.T) {
	compressor := NewCompressor()

	long := strings.Repeat("a line of content that repeats itself\n", 200)
	result := compressor.Compress(long, token.ContentTypeOther, LevelLow, 30)

	if !result.Truncated {
		t.Error("expected truncation for tiny target")
	}
	if !strings.HasSuffix(result.Content, TruncationMarker) {
		t.Error("truncated output must end with the truncation marker")
	}
	if result.Tokens > 40 {
		t.Errorf("truncated result has %d tokens, want near target 30", result.Tokens)
	}
}

func TestCompress_NoneIsIdentity(t *testing.T) {
	compressor := NewCompressor()

	result := compressor.Compress(sampleCode, token.ContentTypeCode, LevelNone, 0)
	if result.Content != sampleCode {
		t.Error("LevelNone must not modify content")
	}
	if result.Ratio != 1.0 {
		t.Errorf("LevelNone ratio = %f, want 1.0", result.Ratio)
	}
}

func TestLevelForRatio(t *testing.T) {
	tests := []struct {
		ratio float64
		want  Level
	}{
		{1.2, LevelNone},
		{0.9, LevelLow},
		{0.7, LevelModerate},
		{0.5, LevelHigh},
		{0.2, LevelExtreme},
	}

	for _, tt := range tests {
		if got := LevelForRatio(tt.ratio); got != tt.want {
			t.Errorf("LevelForRatio(%f) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("HIGH") != LevelHigh {
		t.Error("ParseLevel should be case-insensitive")
	}
	if ParseLevel("bogus") != LevelModerate {
		t.Error("unknown names should default to moderate")
	}
}
