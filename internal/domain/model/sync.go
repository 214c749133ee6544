package model

import (
	"errors"
	"fmt"
)

// SyncBehaviour decides where a subscription resumes and how it fetches.
type SyncBehaviour string

const (
	// SyncCatchupWithIndexer resumes from the watermark and uses the
	// indexer for bulk catch-up when one is configured.
	SyncCatchupWithIndexer SyncBehaviour = "catchup-with-indexer"
	// SyncSkipNewest jumps to the newest rounds when lagging more than a
	// batch behind, discarding the rounds in between.
	SyncSkipNewest SyncBehaviour = "skip-sync-newest"
	// SyncOldest resumes from the watermark replaying blocks from the node.
	SyncOldest SyncBehaviour = "sync-oldest"
)

func (s SyncBehaviour) String() string {
	return string(s)
}

func ParseSyncBehaviour(s string) (SyncBehaviour, error) {
	switch b := SyncBehaviour(s); b {
	case SyncCatchupWithIndexer, SyncSkipNewest, SyncOldest:
		return b, nil
	}
	return "", fmt.Errorf("unknown sync behaviour %q", s)
}

// ErrCorruptWatermark marks a persisted watermark that cannot be read back
// as a round. It is fatal to the subscription loop.
var ErrCorruptWatermark = errors.New("corrupt watermark")
