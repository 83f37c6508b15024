package sink

import "testing"

func TestNormalizeTable(t *testing.T) {
	cases := []struct{ in, want string }{
		{"orders", "orders"},
		{"Orders.V2", "orders_v2"},
		{"web-clicks", "web_clicks"},
		{"2fa.events", "_2fa_events"},
		{"already_fine", "already_fine"},
	}
	for _, c := range cases {
		if got := NormalizeTable(c.in); got != c.want {
			t.Errorf("NormalizeTable(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNewTableMapper_ExplicitWins(t *testing.T) {
	m := NewTableMapper(map[string]string{"orders.v2": "orders"})
	if got := m("orders.v2"); got != "orders" {
		t.Fatalf("mapped = %q, want explicit orders", got)
	}
	if got := m("other.topic"); got != "other_topic" {
		t.Fatalf("fallback = %q, want other_topic", got)
	}
}
