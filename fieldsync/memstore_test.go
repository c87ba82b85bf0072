// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store used by the engine tests. WithTx operates on
// a deep copy of the state and swaps it in only when fn succeeds, mirroring
// the commit/rollback contract of the Postgres store.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	seq      map[EntityKind]int64
	entities map[EntityKind]map[int64]*memRow
	parts    map[int64][]PartUsage
	pending  map[uuid.UUID]*PendingChange
}

type memRow struct {
	id         int64
	externalID string
	fields     map[string]any
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		seq:      make(map[EntityKind]int64),
		entities: make(map[EntityKind]map[int64]*memRow),
		parts:    make(map[int64][]PartUsage),
		pending:  make(map[uuid.UUID]*PendingChange),
	}}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &memTx{state: snapshot}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

func (st *memState) clone() *memState {
	out := &memState{
		seq:      make(map[EntityKind]int64, len(st.seq)),
		entities: make(map[EntityKind]map[int64]*memRow, len(st.entities)),
		parts:    make(map[int64][]PartUsage, len(st.parts)),
		pending:  make(map[uuid.UUID]*PendingChange, len(st.pending)),
	}
	for kind, seq := range st.seq {
		out.seq[kind] = seq
	}
	for kind, rows := range st.entities {
		cloned := make(map[int64]*memRow, len(rows))
		for id, row := range rows {
			fields := make(map[string]any, len(row.fields))
			for k, v := range row.fields {
				fields[k] = v
			}
			cloned[id] = &memRow{id: row.id, externalID: row.externalID, fields: fields}
		}
		out.entities[kind] = cloned
	}
	for orderID, parts := range st.parts {
		out.parts[orderID] = append([]PartUsage(nil), parts...)
	}
	for id, pc := range st.pending {
		copied := *pc
		copied.Patch = make(map[string]any, len(pc.Patch))
		for k, v := range pc.Patch {
			copied.Patch[k] = v
		}
		copied.Fields = append([]string(nil), pc.Fields...)
		if pc.DecidedAt != nil {
			t := *pc.DecidedAt
			copied.DecidedAt = &t
		}
		out.pending[id] = &copied
	}
	return out
}

// Test helpers operating on committed state.

func (s *memStore) count(kind EntityKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.entities[kind])
}

func (s *memStore) byExternalID(kind EntityKind, externalID string) *memRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.state.entities[kind] {
		if row.externalID == externalID {
			return row
		}
	}
	return nil
}

func (s *memStore) byID(kind EntityKind, id int64) *memRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.entities[kind][id]
}

func (s *memStore) deleteEntity(kind EntityKind, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.entities[kind], id)
}

func (s *memStore) seedEntity(kind EntityKind, externalID string, fields map[string]any) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.entities[kind] == nil {
		s.state.entities[kind] = make(map[int64]*memRow)
	}
	s.state.seq[kind]++
	id := s.state.seq[kind]
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.state.entities[kind][id] = &memRow{id: id, externalID: externalID, fields: copied}
	return id
}

func (s *memStore) pendingByID(id uuid.UUID) *PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.pending[id]
}

func (s *memStore) orderParts(orderID int64) []PartUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.parts[orderID]
}

// memTx implements Tx against a snapshot.
type memTx struct {
	state *memState
}

func (t *memTx) rows(kind EntityKind) map[int64]*memRow {
	if t.state.entities[kind] == nil {
		t.state.entities[kind] = make(map[int64]*memRow)
	}
	return t.state.entities[kind]
}

func (t *memTx) EntityIDByExternalID(_ context.Context, kind EntityKind, externalID string) (int64, bool, error) {
	if externalID == "" {
		return 0, false, nil
	}
	for id, row := range t.rows(kind) {
		if row.externalID == externalID {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *memTx) EntityExists(_ context.Context, kind EntityKind, id int64) (bool, error) {
	_, ok := t.rows(kind)[id]
	return ok, nil
}

func (t *memTx) EntityExternalID(_ context.Context, kind EntityKind, id int64) (string, bool, error) {
	row, ok := t.rows(kind)[id]
	if !ok {
		return "", false, nil
	}
	return row.externalID, true, nil
}

func (t *memTx) InsertEntity(_ context.Context, kind EntityKind, externalID string, fields map[string]any) (int64, error) {
	t.state.seq[kind]++
	id := t.state.seq[kind]
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	t.rows(kind)[id] = &memRow{id: id, externalID: externalID, fields: copied}
	return id, nil
}

func (t *memTx) UpdateEntity(_ context.Context, kind EntityKind, id int64, fields map[string]any) error {
	row, ok := t.rows(kind)[id]
	if !ok {
		return fmt.Errorf("%s id %d does not exist", kind, id)
	}
	for k, v := range fields {
		row.fields[k] = v
	}
	return nil
}

func (t *memTx) TechnicianExists(ctx context.Context, id int64) (bool, error) {
	return t.EntityExists(ctx, KindTechnician, id)
}

func (t *memTx) TechnicianIDByAlias(_ context.Context, aliasID int64) (int64, bool, error) {
	for id, row := range t.rows(KindTechnician) {
		if alias, ok := row.fields["alias_id"].(int64); ok && alias == aliasID {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *memTx) TechnicianIDByUsername(_ context.Context, username string) (int64, bool, error) {
	for id, row := range t.rows(KindTechnician) {
		if name, ok := row.fields["username"].(string); ok && strings.EqualFold(name, username) {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *memTx) OrderIDByNumber(_ context.Context, number string) (int64, bool, error) {
	for id, row := range t.rows(KindOrder) {
		if n, ok := row.fields["order_number"].(string); ok && n == number {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *memTx) OrderStatus(_ context.Context, id int64) (string, error) {
	row, ok := t.rows(KindOrder)[id]
	if !ok {
		return "", fmt.Errorf("order id %d does not exist", id)
	}
	status, _ := row.fields["status"].(string)
	return status, nil
}

func (t *memTx) ReplaceOrderParts(_ context.Context, orderID int64, parts []PartUsage) error {
	t.state.parts[orderID] = append([]PartUsage(nil), parts...)
	return nil
}

func (t *memTx) InsertPendingChange(_ context.Context, pc *PendingChange) error {
	copied := *pc
	t.state.pending[pc.ID] = &copied
	return nil
}

func (t *memTx) PendingChangeByID(_ context.Context, id uuid.UUID) (*PendingChange, error) {
	pc, ok := t.state.pending[id]
	if !ok {
		return nil, nil
	}
	copied := *pc
	return &copied, nil
}

func (t *memTx) ListPendingChanges(_ context.Context) ([]*PendingChange, error) {
	var out []*PendingChange
	for _, pc := range t.state.pending {
		if pc.Status == PendingStatusPending {
			copied := *pc
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) SetPendingChangeStatus(_ context.Context, id uuid.UUID, status string, decidedAt time.Time) error {
	pc, ok := t.state.pending[id]
	if !ok {
		return fmt.Errorf("pending change %s does not exist", id)
	}
	pc.Status = status
	pc.DecidedAt = &decidedAt
	return nil
}

func (t *memTx) RejectOtherPending(_ context.Context, kind EntityKind, entityID int64, exceptID uuid.UUID, decidedAt time.Time) (int64, error) {
	var n int64
	for id, pc := range t.state.pending {
		if id == exceptID || pc.EntityKind != kind || pc.EntityID != entityID || pc.Status != PendingStatusPending {
			continue
		}
		pc.Status = PendingStatusRejected
		pc.DecidedAt = &decidedAt
		n++
	}
	return n, nil
}
