// thread_message.go — thread_messages 表 CRUD (消息流持久化)。
//
// 每条会话消息一行, parts 原样存 JSONB; 按 (thread_id, message_id)
// 幂等 upsert, 流式期间同一消息多次落盘收敛为最终形态。
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ThreadMessage 会话消息记录。
type ThreadMessage struct {
	ID        int64           `db:"id" json:"id"`
	ThreadID  string          `db:"thread_id" json:"threadId"`
	MessageID string          `db:"message_id" json:"messageId"`
	Role      string          `db:"role" json:"role"` // user | assistant | system
	Parts     json.RawMessage `db:"parts" json:"parts,omitempty"`
	Content   string          `db:"content" json:"content"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// ThreadMessageStore thread_messages 存储。
type ThreadMessageStore struct{ BaseStore }

// NewThreadMessageStore 创建。
func NewThreadMessageStore(pool *pgxpool.Pool) *ThreadMessageStore {
	return &ThreadMessageStore{NewBaseStore(pool)}
}

const tmCols = "id, thread_id, message_id, role, parts, content, created_at"

// Upsert 写入或更新一条消息。
func (s *ThreadMessageStore) Upsert(ctx context.Context, msg *ThreadMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO thread_messages (thread_id, message_id, role, parts, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (thread_id, message_id)
		 DO UPDATE SET role = EXCLUDED.role, parts = EXCLUDED.parts, content = EXCLUDED.content`,
		msg.ThreadID, msg.MessageID, msg.Role, msg.Parts, msg.Content, msg.CreatedAt)
	return err
}

// ListByThread 按线程加载全部消息 (写入顺序)。
func (s *ThreadMessageStore) ListByThread(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+tmCols+" FROM thread_messages WHERE thread_id=$1 ORDER BY id", threadID)
	if err != nil {
		return nil, err
	}
	return collectRows[ThreadMessage](rows)
}

// CountByThread 统计线程消息数。
func (s *ThreadMessageStore) CountByThread(ctx context.Context, threadID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM thread_messages WHERE thread_id=$1", threadID).Scan(&count)
	return count, err
}

// DeleteByThread 删除线程全部消息。
func (s *ThreadMessageStore) DeleteByThread(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM thread_messages WHERE thread_id=$1", threadID)
	return err
}
