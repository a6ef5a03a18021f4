// ui_event.go — ui_events 表 CRUD (旁路结构化事件持久化)。
//
// 盖戳后的事件追加写入; (thread_id, seq) 唯一, 重复投递静默去重,
// 与引擎侧的 applied-seq 去重语义一致。
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UIEvent 旁路事件记录。
type UIEvent struct {
	ID             int64           `db:"id" json:"id"`
	ThreadID       string          `db:"thread_id" json:"threadId"`
	EventType      string          `db:"event_type" json:"eventType"`
	Payload        json.RawMessage `db:"payload" json:"payload,omitempty"`
	Seq            int64           `db:"seq" json:"seq"`
	MsgCountAtEmit int             `db:"msg_count_at_emit" json:"msgCountAtEmit"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// UIEventStore ui_events 存储。
type UIEventStore struct{ BaseStore }

// NewUIEventStore 创建。
func NewUIEventStore(pool *pgxpool.Pool) *UIEventStore {
	return &UIEventStore{NewBaseStore(pool)}
}

const ueCols = "id, thread_id, event_type, payload, seq, msg_count_at_emit, created_at"

// Insert 追加一条事件; 同 (thread_id, seq) 的重复投递去重。
func (s *UIEventStore) Insert(ctx context.Context, ev *UIEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ui_events (thread_id, event_type, payload, seq, msg_count_at_emit, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (thread_id, seq) DO NOTHING`,
		ev.ThreadID, ev.EventType, ev.Payload, ev.Seq, ev.MsgCountAtEmit, ev.CreatedAt)
	return err
}

// ListByThread 按 seq 升序加载线程事件 (重放顺序)。limit <= 0 取全部。
func (s *UIEventStore) ListByThread(ctx context.Context, threadID string, limit int) ([]UIEvent, error) {
	sql := "SELECT " + ueCols + " FROM ui_events WHERE thread_id=$1 ORDER BY seq"
	args := []any{threadID}
	if limit > 0 {
		sql += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectRows[UIEvent](rows)
}

// DeleteByThread 删除线程全部事件。
func (s *UIEventStore) DeleteByThread(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM ui_events WHERE thread_id=$1", threadID)
	return err
}
