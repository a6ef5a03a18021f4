// thread_snapshot.go — thread_snapshots 表 CRUD (恢复快照持久化)。
//
// 整包快照 (messages + artifacts + ui_events) 存 JSONB, 只追加;
// 恢复时取最新一条, Prune 控制每线程保留份数。
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ThreadSnapshot 快照记录。
type ThreadSnapshot struct {
	ID        int64           `db:"id" json:"id"`
	ThreadID  string          `db:"thread_id" json:"threadId"`
	Snapshot  json.RawMessage `db:"snapshot" json:"snapshot"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// ThreadSnapshotStore thread_snapshots 存储。
type ThreadSnapshotStore struct{ BaseStore }

// NewThreadSnapshotStore 创建。
func NewThreadSnapshotStore(pool *pgxpool.Pool) *ThreadSnapshotStore {
	return &ThreadSnapshotStore{NewBaseStore(pool)}
}

const tsCols = "id, thread_id, snapshot, created_at"

// Save 追加一份快照。
func (s *ThreadSnapshotStore) Save(ctx context.Context, threadID string, snapshot json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO thread_snapshots (thread_id, snapshot, created_at) VALUES ($1, $2, $3)`,
		threadID, snapshot, time.Now())
	return err
}

// Latest 取线程最新快照, 不存在返回 nil。
func (s *ThreadSnapshotStore) Latest(ctx context.Context, threadID string) (*ThreadSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+tsCols+" FROM thread_snapshots WHERE thread_id=$1 ORDER BY id DESC LIMIT 1",
		threadID)
	if err != nil {
		return nil, err
	}
	return collectOne[ThreadSnapshot](rows)
}

// Prune 每线程只保留最近 keep 份快照, 返回删除数。
func (s *ThreadSnapshotStore) Prune(ctx context.Context, threadID string, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM thread_snapshots
		 WHERE thread_id=$1 AND id NOT IN (
		   SELECT id FROM thread_snapshots WHERE thread_id=$1 ORDER BY id DESC LIMIT $2
		 )`,
		threadID, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByThread 删除线程全部快照。
func (s *ThreadSnapshotStore) DeleteByThread(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM thread_snapshots WHERE thread_id=$1", threadID)
	return err
}
