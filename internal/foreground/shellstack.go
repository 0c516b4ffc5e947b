package foreground

import (
	"context"
	"strings"
	"time"

	"github.com/jark-labs/freezerd/internal/registry"
	"go.uber.org/zap"
)

// ActivityStackSource parses `cmd activity stack list`.
type ActivityStackSource struct {
	log *zap.Logger
	reg registry.Registry
}

func NewActivityStackSource(log *zap.Logger, reg registry.Registry) *ActivityStackSource {
	return &ActivityStackSource{log: log.Named("fg.activity_stack"), reg: reg}
}

// Poll returns the current foreground uid set, per the parsing rules in
// spec.md §4.4: a task's uid is included when a later line in the same task
// block reports "visible=true". As a side effect, if the registry has no
// home package recorded yet, the first home-type stack's package/activity
// is captured as the home package.
func (s *ActivityStackSource) Poll(ctx context.Context) (map[int]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	lines, err := runShell(ctx, s.log, "/system/bin/cmd", "activity", "stack", "list")
	if err != nil {
		return nil, err
	}

	byPkg := make(map[string]int)
	for _, a := range s.reg.All() {
		byPkg[a.Package] = a.UID
	}

	uids := make(map[int]struct{})
	_, haveHome := s.reg.HomePackage()

	var curUID int
	var haveCurUID bool
	wantHomeActivity := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "taskId=") {
			pkg, _ := parseTaskLine(trimmed)
			curUID, haveCurUID = byPkg[pkg]
			continue
		}

		if wantHomeActivity {
			if pkg := pkgFromActivityToken(trimmed); pkg != "" && !haveHome {
				s.reg.SetHomePackage(pkg)
				haveHome = true
			}
			wantHomeActivity = false
			continue
		}

		if strings.Contains(trimmed, "mActivityType=home") {
			wantHomeActivity = true
		}

		if haveCurUID && strings.Contains(trimmed, "visible=true") && !s.reg.Whitelisted(curUID) {
			uids[curUID] = struct{}{}
		}
	}

	return uids, nil
}

// parseTaskLine extracts the package name from a "taskId=N: pkg/activity …"
// line.
func parseTaskLine(line string) (pkg string, ok bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", false
	}
	rest := strings.TrimSpace(line[colon+1:])
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return "", false
	}
	pkg = rest[:slash]
	return pkg, pkg != ""
}

// pkgFromActivityToken extracts the package name out of an ActivityRecord
// token such as "ActivityRecord{9f4a2ac u0 com.example.app/.Launcher t3}".
// The hash and user-id fields precede the pkg/activity pair and trailing
// fields (task ids, "act:...") can follow it, so every field must be
// checked for a '/' rather than assuming it's the last one.
func pkgFromActivityToken(line string) string {
	start := strings.Index(line, "{")
	end := strings.Index(line, "}")
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	for _, field := range strings.Fields(line[start+1 : end]) {
		if slash := strings.Index(field, "/"); slash >= 0 {
			return field[:slash]
		}
	}
	return ""
}
