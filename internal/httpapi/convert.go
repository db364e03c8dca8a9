package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

// ── Status ───────────────────────────────────────────────────────────────────

func snapshotToProto(s service.Snapshot, now time.Time) (*structpb.Struct, error) {
	return structpb.NewStruct(s.Map(now))
}

// ── Events ───────────────────────────────────────────────────────────────────

type eventsResponse struct {
	Events []map[string]any `json:"events"`
}

func eventsToJSON(recs []store.AccessEventRecord) []map[string]any {
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, service.EventMap(r))
	}
	return out
}
