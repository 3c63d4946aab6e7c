package payments

import (
	"testing"
	"time"

	"github.com/servihub/servihub/services/booking-service/internal/model"
)

func TestRefundPolicyPercent(t *testing.T) {
	policy := DefaultRefundPolicy()
	b := &model.Booking{
		Date:        time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartMinute: 600, // 10:00
		EndMinute:   660,
	}
	start := b.StartAt()

	cases := []struct {
		name        string
		cancelledAt time.Time
		want        int
	}{
		{"two days out", start.Add(-48 * time.Hour), 100},
		{"just over a day out", start.Add(-25 * time.Hour), 100},
		{"under a day out", start.Add(-23 * time.Hour), 50},
		{"two hours out", start.Add(-2 * time.Hour), 50},
	}
	for _, tc := range cases {
		if got := policy.Percent(b, tc.cancelledAt); got != tc.want {
			t.Errorf("%s: Percent = %d, want %d", tc.name, got, tc.want)
		}
	}
}
