package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/ghostnotes/internal/pkg/metrics"
)

type fakeStat struct{ acquired, idle, total int32 }

func (s fakeStat) AcquiredConns() int32 { return s.acquired }
func (s fakeStat) IdleConns() int32     { return s.idle }
func (s fakeStat) TotalConns() int32    { return s.total }

func scrape(t *testing.T) string {
	t.Helper()
	app := fiber.New()
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestUpdateDBPoolMetrics(t *testing.T) {
	metrics.UpdateDBPoolMetrics(fakeStat{acquired: 3, idle: 2, total: 5})
	metrics.UpdateDBPoolMetrics(nil)

	body := scrape(t)
	for _, want := range []string{
		"ghostnotes_db_pool_conns_acquired 3",
		"ghostnotes_db_pool_conns_idle 2",
		"ghostnotes_db_pool_conns_open 5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in scrape output", want)
		}
	}
}

func TestObserveTransition(t *testing.T) {
	metrics.ObserveTransition("aligning", "revealed")

	body := scrape(t)
	if !strings.Contains(body, `ghostnotes_reveal_phase_transitions_total{from="aligning",to="revealed"}`) {
		t.Error("transition counter missing from scrape output")
	}
	if !strings.Contains(body, "ghostnotes_reveal_reveals_total") {
		t.Error("reveals counter missing from scrape output")
	}
}
