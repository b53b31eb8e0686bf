// Package server runs engram's long-lived watch-buffer-dispatch loop: file,
// git, and session watchers feed a persistent ContextBuffer, and Server
// triggers a Dispatcher run once the buffer fills or drift crosses a
// threshold. Grounded on original_source/engram/server/__init__.py and
// server/buffer.py.
package server

import (
	"fmt"

	"github.com/rajeshgoli/engram/internal/chunk"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// ContextBuffer accumulates changed items from watchers and reports
// whether accumulated state warrants a dispatch. Grounded on
// server/buffer.py's ContextBuffer.
type ContextBuffer struct {
	cfg         config.Config
	projectRoot string
	store       *store.Store
	repo        vcs.Repo
}

// NewContextBuffer returns a ContextBuffer backed by s.
func NewContextBuffer(cfg config.Config, projectRoot string, s *store.Store, repo vcs.Repo) *ContextBuffer {
	return &ContextBuffer{cfg: cfg, projectRoot: projectRoot, store: s, repo: repo}
}

// AddItem records one watcher-reported item if it isn't already buffered
// under the same path and driftType. Returns true if it was added.
func (b *ContextBuffer) AddItem(path, itemType string, chars int, date, metadata string) (bool, error) {
	exists, err := b.store.HasBufferItem(path, "")
	if err != nil {
		return false, fmt.Errorf("buffer add item: %w", err)
	}
	if exists {
		return false, nil
	}
	if _, err := b.store.AddBufferItem(store.BufferItem{
		Path: path, ItemType: itemType, Chars: chars, Date: date, Metadata: metadata,
	}); err != nil {
		return false, fmt.Errorf("buffer add item: %w", err)
	}
	return true, nil
}

// DispatchReason names why ShouldDispatch returned true: "buffer_full" or
// "drift:<type>".
type DispatchReason string

// ShouldDispatch reports whether the buffer should trigger a dispatch,
// checking drift thresholds first and then buffer fill against the
// computed chunk budget.
func (b *ContextBuffer) ShouldDispatch() (DispatchReason, bool, error) {
	foldFrom, err := b.store.GetFoldFrom()
	if err != nil {
		return "", false, fmt.Errorf("should dispatch: %w", err)
	}
	drift := chunk.ScanDrift(b.cfg, b.projectRoot, b.repo, foldFrom)
	if driftType := drift.Triggered(b.cfg.Thresholds); driftType != "" {
		return DispatchReason("drift:" + driftType), true, nil
	}

	paths := config.ResolveDocPaths(b.cfg, b.projectRoot)
	budget, _ := chunk.ComputeBudget(b.cfg, paths, 0)
	bufferChars, err := b.store.GetBufferChars()
	if err != nil {
		return "", false, fmt.Errorf("should dispatch: %w", err)
	}
	if budget > 0 && bufferChars >= budget {
		return "buffer_full", true, nil
	}
	return "", false, nil
}

// FillInfo summarizes buffer state for status reporting.
type FillInfo struct {
	ItemCount      int
	BufferChars    int
	Budget         int
	LivingDocChars int
	FillPct        float64
}

// GetFillInfo returns current buffer fill information.
func (b *ContextBuffer) GetFillInfo() (FillInfo, error) {
	paths := config.ResolveDocPaths(b.cfg, b.projectRoot)
	budget, livingChars := chunk.ComputeBudget(b.cfg, paths, 0)
	bufferChars, err := b.store.GetBufferChars()
	if err != nil {
		return FillInfo{}, fmt.Errorf("get fill info: %w", err)
	}
	items, err := b.store.GetBufferItems()
	if err != nil {
		return FillInfo{}, fmt.Errorf("get fill info: %w", err)
	}

	fillPct := 0.0
	if budget > 0 {
		fillPct = float64(bufferChars) / float64(budget) * 100
		if fillPct > 100 {
			fillPct = 100
		}
	}

	return FillInfo{
		ItemCount:      len(items),
		BufferChars:    bufferChars,
		Budget:         budget,
		LivingDocChars: livingChars,
		FillPct:        fillPct,
	}, nil
}

// ConsumeAll drains every buffered item and returns what was consumed.
func (b *ContextBuffer) ConsumeAll() ([]store.BufferItem, error) {
	items, err := b.store.GetBufferItems()
	if err != nil {
		return nil, fmt.Errorf("consume all: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := b.store.ConsumeBuffer(ids); err != nil {
		return nil, fmt.Errorf("consume all: %w", err)
	}
	return items, nil
}
