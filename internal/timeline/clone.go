// clone.go — 深拷贝辅助。对外返回的一律是独立快照,
// 内部槽位指针绝不漏出锁外。
package timeline

import "maps"

func cloneSlot(s *ArtifactSlot) *ArtifactSlot {
	if s == nil {
		return nil
	}
	out := *s
	if s.Deck != nil {
		deck := *s.Deck
		deck.Slides = maps.Clone(s.Deck.Slides)
		out.Deck = &deck
	}
	if s.Analyst != nil {
		analyst := *s.Analyst
		out.Analyst = &analyst
	}
	if s.Writer != nil {
		writer := *s.Writer
		out.Writer = &writer
	}
	if s.Outline != nil {
		out.Outline = cloneOutline(s.Outline)
	}
	out.Extra = maps.Clone(s.Extra)
	return &out
}

func cloneOutline(o *OutlineContent) *OutlineContent {
	if o == nil {
		return nil
	}
	out := *o
	out.Slides = make([]OutlineSlide, len(o.Slides))
	for i, s := range o.Slides {
		s.Bullets = append([]string(nil), s.Bullets...)
		out.Slides[i] = s
	}
	return &out
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m.Parts = append([]Part(nil), m.Parts...)
		out[i] = m
	}
	return out
}
