//go:build blackbox

package blackbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

var riskdeskBin string

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "riskdesk-blackbox-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	riskdeskBin = filepath.Join(tmp, "riskdesk")

	// Build the binary once for all tests.
	cmd := exec.Command("go", "build", "-o", riskdeskBin, "../../cmd/riskdesk")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func run(t *testing.T, args ...string) string {
	t.Helper()

	cmd := exec.Command(riskdeskBin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// CombinedOutput merges stdout/stderr; still useful in failures.
		t.Fatalf("command failed: %v\nargs: %v\noutput:\n%s", err, args, string(out))
	}
	return string(out)
}

func TestVersion(t *testing.T) {
	out := run(t, "version")
	if !contains(out, "riskdesk version") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigInitValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riskdesk.yaml")
	run(t, "config", "init", "-o", path)

	out := run(t, "config", "validate", "-f", path)
	for _, want := range []string{"Configuration valid", "max 3 open", "BTC/USDT"} {
		if !contains(out, want) {
			t.Fatalf("validate output missing %q:\n%s", want, out)
		}
	}
}

func TestReplayThenJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "riskdesk.db")
	cfg := writeFile(t, "riskdesk.yaml", configYAML(db))

	start := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	quotes := writeFile(t, "quotes.csv", quotesCSV(start, 100, 99, 98, 97, 96, 95, 94, 93, 96, 100, 104, 108))

	out := run(t, "run", "-c", cfg, "--replay", quotes)
	for _, want := range []string{"Replayed 12 quotes over 12 ticks", "Closed trades: 1", "Open positions: 0"} {
		if !contains(out, want) {
			t.Fatalf("replay output missing %q:\n%s", want, out)
		}
	}

	out = run(t, "journal", "day", "2024-03-04", "-d", db, "--tz", "UTC")
	for _, want := range []string{"Summary 2024-03-04", "| Trades        | 1 |", "take profit"} {
		if !contains(out, want) {
			t.Fatalf("journal output missing %q:\n%s", want, out)
		}
	}

	out = run(t, "journal", "open", "-d", db)
	if contains(out, "SOL") {
		t.Fatalf("no trade should remain open:\n%s", out)
	}
}
