//go:build blackbox

package blackbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

// writeFile drops content into the test's temp dir and returns the path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// quotesCSV renders one SOL quote per minute starting at start.
func quotesCSV(start time.Time, prices ...float64) string {
	var b strings.Builder
	b.WriteString("time,symbol,price\n")
	for i, p := range prices {
		fmt.Fprintf(&b, "%s,SOL,%.2f\n", start.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), p)
	}
	return b.String()
}

func configYAML(dbPath string) string {
	return fmt.Sprintf(`account:
  id: blackbox
  currency: USD
  equity: 10000
risk:
  min_confidence: 0.5
  cooldown: 0s
scheduler:
  symbols: [SOL]
strategy:
  fast_period: 2
  slow_period: 4
  atr_period: 3
journal:
  type: sqlite
  db_path: %s
log:
  level: error
`, dbPath)
}
