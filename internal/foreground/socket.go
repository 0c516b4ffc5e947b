package foreground

import (
	"context"

	"github.com/jark-labs/freezerd/internal/registry"
	"go.uber.org/zap"
)

// foregroundGetter is the slice of systools.Client this source needs,
// narrowed so tests can stub it without a real socket.
type foregroundGetter interface {
	GetForeground() ([]int, error)
}

// SocketSource gets the foreground uid set from the companion hook over its
// local-socket RPC. Cheapest of the three sources when the hook is
// installed, since it needs no shell spawn or text parsing.
type SocketSource struct {
	log    *zap.Logger
	reg    registry.Registry
	client foregroundGetter
}

func NewSocketSource(log *zap.Logger, reg registry.Registry, client foregroundGetter) *SocketSource {
	return &SocketSource{log: log.Named("fg.socket"), reg: reg, client: client}
}

func (s *SocketSource) Poll(_ context.Context) (map[int]struct{}, error) {
	raw, err := s.client.GetForeground()
	if err != nil {
		return nil, err
	}

	out := make(map[int]struct{}, len(raw))
	for _, uid := range raw {
		if _, ok := s.reg.Lookup(uid); !ok {
			continue
		}
		if s.reg.Whitelisted(uid) {
			continue
		}
		out[uid] = struct{}{}
	}
	return out, nil
}
