package version

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "tradewatch/dev" {
		t.Fatalf("默认 User-Agent 错误: %q", got)
	}
}

func TestString(t *testing.T) {
	out := String()
	for _, want := range []string{"version: dev", "commit: unknown", "built: unknown"} {
		if !strings.Contains(out, want) {
			t.Fatalf("缺少 %q: %q", want, out)
		}
	}
}
