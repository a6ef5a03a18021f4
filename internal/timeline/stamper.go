// stamper.go — 序号与 order key 计算。
//
// 每条消息占一个宽度为 unit 的 order 区段: 第 i 条消息的 run 落在
// [i*unit, (i+1)*unit)。事件在发射时被盖上 (seq, msgCountAtEmit) 戳,
// 其 order key 紧贴在第 msgCountAtEmit 条消息之前:
//
//	order = msgCountAtEmit*unit - 0.5 + seq/orderSeqDiv
//
// seq 项只在同一消息间隙内决定事件相对次序, 永远不足以跨过 0.5 的
// 区段边界。戳一经赋值不再重算。
package timeline

const (
	// DefaultMsgCountUnit 每条消息的 order 区段宽度。
	DefaultMsgCountUnit = 1000
	// orderSeqDiv seq 的微小偏移除数; 远大于任何现实会话的事件总数。
	orderSeqDiv = 1e9
	// followupOffset 追问建议固定排到所属区段末尾。
	followupOffset = 999
)

// engineState 每实例计数器与去重集合。跨线程共享属缺陷, 由 Engine 的锁保证。
type engineState struct {
	seq        uint64
	msgCount   int
	anchor     int // 乐观锚点: >0 时盖戳用 anchor 而非 msgCount
	appliedSeq map[uint64]struct{}
}

func newEngineState() engineState {
	return engineState{appliedSeq: make(map[uint64]struct{})}
}

// nextSeq 发下一个单调 seq。
func (s *engineState) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// stampCount 当前盖戳用的消息计数。
func (s *engineState) stampCount() int {
	if s.anchor > 0 {
		return s.anchor
	}
	return s.msgCount
}

// orderKey 旁路事件的时间线排序键。
func orderKey(msgCount int, seq uint64, unit int) float64 {
	return float64(msgCount*unit) - 0.5 + float64(seq)/orderSeqDiv
}

// followupOrderKey 追问建议的排序键: 所属助手回合区段的末尾。
func followupOrderKey(msgCount int, seq uint64, unit int) float64 {
	return float64(msgCount*unit) + followupOffset + float64(seq)/orderSeqDiv
}

// runOrderKey 消息 run 的排序键: 消息区段起点 + part 下标。
func runOrderKey(msgIndex, partIndex, unit int) float64 {
	return float64(msgIndex*unit + partIndex)
}
