package foreground

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jark-labs/freezerd/internal/registry"
	"github.com/jark-labs/freezerd/internal/sysprop"
	"go.uber.org/zap"
)

// hookHeader marks the first line of the hook dialect's output.
const hookHeader = "JARK006_LRU"

// lruLevelTokens maps the 4-byte stock-dialect level token to the hook
// dialect's numeric level, so both dialects share one inclusion rule.
var lruLevelTokens = map[string]int{
	"PER ": 2,
	"PERU": 2,
	"TOP ": 3,
	"BTOP": 3,
	"FGS ": 4,
	"BFGS": 5,
	"IMPF": 6,
}

// ActivityLRUSource parses `dumpsys activity lru`, in whichever of the two
// dialects the installed hook (or its absence) produces.
type ActivityLRUSource struct {
	log     *zap.Logger
	reg     registry.Registry
	sysprop *sysprop.Reader
}

func NewActivityLRUSource(log *zap.Logger, reg registry.Registry, sp *sysprop.Reader) *ActivityLRUSource {
	return &ActivityLRUSource{log: log.Named("fg.activity_lru"), reg: reg, sysprop: sp}
}

func (s *ActivityLRUSource) Poll(ctx context.Context) (map[int]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	lines, err := runShell(ctx, s.log, "/system/bin/dumpsys", "activity", "lru")
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return map[int]struct{}{}, nil
	}

	if strings.HasPrefix(lines[0], hookHeader) {
		return s.parseHookDialect(lines[1:]), nil
	}
	return s.parseStockDialect(ctx, lines), nil
}

func (s *ActivityLRUSource) include(uid, level int) bool {
	if level < 2 || level > 6 {
		return false
	}
	if level <= 3 {
		return true
	}
	snap, ok := s.reg.Lookup(uid)
	return ok && snap.IsTolerant
}

func (s *ActivityLRUSource) parseHookDialect(lines []string) map[int]struct{} {
	out := make(map[int]struct{})
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		uid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		if s.include(uid, level) && !s.reg.Whitelisted(uid) {
			out[uid] = struct{}{}
		}
	}
	return out
}

// parseStockDialect handles API >= 29 stock dumpsys output. Entries carry no
// braces; they look like
//
//	  #30: fg     TOP  LCM 995:com.android.launcher3/u0a117 act:activities|recents
//	    #26: fore   TOP  2961:com.android.launcher3/u0a100  activity=activities|recents
//
// (two leading spaces before '#' on API >= 30, four on API 29). Only the
// "Activities:" block is read; it ends at the first line that no longer
// starts with that prefix (the "Other:"/"Service:" section).
func (s *ActivityLRUSource) parseStockDialect(ctx context.Context, lines []string) map[int]struct{} {
	out := make(map[int]struct{})

	q, err := s.sysprop.Get(ctx)
	if err != nil {
		s.log.Warn("sysprop read failed, assuming API 30 prefix width", zap.Error(err))
	}
	startPrefix := "  #"
	if q.SDKInt == 29 {
		startPrefix = "    #"
	}

	inActivities := false
	for _, line := range lines {
		if !inActivities {
			if strings.TrimSpace(line) == "Activities:" {
				inActivities = true
			}
			continue
		}
		if !strings.HasPrefix(line, startPrefix) {
			break // reached "Other:"/"Service:"; done with the Activities block
		}

		level, ok := stockLevelToken(line[len(startPrefix):])
		if !ok {
			continue
		}
		uid, ok := uidFromU0ASuffix(line)
		if !ok || s.reg.Whitelisted(uid) {
			continue
		}
		if _, ok := s.reg.Lookup(uid); !ok {
			continue
		}

		if s.include(uid, level) {
			out[uid] = struct{}{}
		}
	}

	return out
}

// stockLevelToken reads the 4-byte proc-state token (e.g. "TOP ", "FGS ")
// that immediately follows the "#NN: " index column, given the portion of
// the line after the leading "  #"/"    #" prefix. The index is padded to
// two digits and widens to three past #99, which pushes the token one
// byte further out.
func stockLevelToken(afterHash string) (int, bool) {
	offset := 12
	if len(afterHash) > 2 && afterHash[2] == ':' {
		offset = 11
	}
	if len(afterHash) < offset+4 {
		return 0, false
	}
	level, ok := lruLevelTokens[afterHash[offset:offset+4]]
	return level, ok
}

// uidFromU0ASuffix derives an app uid straight from a "pid:package/u0aNNN"
// token's numeric suffix, per Android's uid scheme (app uid = 10000 +
// appId under user 0). Lines with no matching app process — system
// services, other users — have no "/u0a" substring and are skipped.
func uidFromU0ASuffix(line string) (int, bool) {
	idx := strings.Index(line, "/u0a")
	if idx < 0 {
		return 0, false
	}
	digits := line[idx+len("/u0a"):]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	appID, err := strconv.Atoi(digits[:end])
	if err != nil {
		return 0, false
	}
	return 10000 + appID, true
}
