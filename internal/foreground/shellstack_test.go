package foreground

import "testing"

func TestParseTaskLine(t *testing.T) {
	cases := []struct {
		line    string
		wantPkg string
		wantOK  bool
	}{
		{"taskId=12: com.example.app/.MainActivity bounds=...", "com.example.app", true},
		{"taskId=3: com.other.app/com.other.app.SplashActivity", "com.other.app", true},
		{"taskId=4: malformed-no-slash", "", false},
		{"no colon here at all", "", false},
	}
	for _, tc := range cases {
		pkg, ok := parseTaskLine(tc.line)
		if pkg != tc.wantPkg || ok != tc.wantOK {
			t.Errorf("parseTaskLine(%q) = (%q, %v), want (%q, %v)", tc.line, pkg, ok, tc.wantPkg, tc.wantOK)
		}
	}
}

func TestPkgFromActivityToken(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"mResumedActivity: ActivityRecord{abcd1234 u0 com.example.launcher/.Home t5}", "com.example.launcher"},
		{"no braces here", ""},
		{"ActivityRecord{abcd no-slash-token}", ""},
	}
	for _, tc := range cases {
		if got := pkgFromActivityToken(tc.line); got != tc.want {
			t.Errorf("pkgFromActivityToken(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
}
