package peers

import "testing"

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"node2", "http://node2:8080/temp"},
		{"192.168.1.102", "http://192.168.1.102:8080/temp"},
		{"nanocluster2.internal", "http://nanocluster2.internal:8080/temp"},
		{"node2:9100", "http://node2:9100/temp"},
		{"fe80::1", "http://[fe80::1]:8080/temp"},
		{"[fe80::1]:9100", "http://[fe80::1]:9100/temp"},
		{"http://node2:8080/temp", "http://node2:8080/temp"},
		{"http://node2", "http://node2"},
		{"https://node2:8443/custom", "https://node2:8443/custom"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := NormalizeURL(tc.in, 0, ""); got != tc.want {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeURL_CustomPortAndPath(t *testing.T) {
	if got := NormalizeURL("node2", 2505, "temp"); got != "http://node2:2505/temp" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeURL("node2", 2505, "/metrics"); got != "http://node2:2505/metrics" {
		t.Fatalf("got %q", got)
	}
}
