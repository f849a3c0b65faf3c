package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ExposesRecordedMetrics(t *testing.T) {
	RecordOperation("mint", "")
	RecordOperation("mint", "integrity")
	RecordTransfer("lock", "USDT", 40)
	UpdatePaused(true)
	RecordDBQuery("postgres", "journal_append", 0.002, errors.New("boom"))

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	for _, want := range []string{
		`bridge_ledger_ledger_operations_total{op="mint",status="ok"}`,
		`bridge_ledger_ledger_operation_errors_total{kind="integrity",op="mint"}`,
		`bridge_ledger_ledger_paused 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %s", want)
		}
	}
}
