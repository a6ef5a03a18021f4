package timeline

import "testing"

func TestSplitContiguousRuns(t *testing.T) {
	msg := Message{ID: "m1", Role: RoleAssistant, Parts: []Part{
		{Kind: PartReasoning, Text: "thinking "},
		{Kind: PartReasoning, Text: "more"},
		{Kind: PartText, Text: "Hello "},
		{Kind: PartText, Text: "world"},
		{Kind: PartReasoning, Text: "again"},
	}}
	runs := splitMessageRuns(msg, 0, DefaultMsgCountUnit)
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	if !runs[0].Reasoning || runs[0].Text != "thinking more" {
		t.Fatalf("runs[0] = %+v, want merged reasoning run", runs[0])
	}
	if runs[1].Reasoning || runs[1].Text != "Hello world" {
		t.Fatalf("runs[1] = %+v, want merged text run", runs[1])
	}
	if runs[0].ID != "m1-run-0" || runs[1].ID != "m1-run-2" || runs[2].ID != "m1-run-4" {
		t.Fatalf("run ids = %q %q %q, want start-index based ids",
			runs[0].ID, runs[1].ID, runs[2].ID)
	}
	if runs[0].Order >= runs[1].Order || runs[1].Order >= runs[2].Order {
		t.Fatalf("run orders not increasing: %v %v %v",
			runs[0].Order, runs[1].Order, runs[2].Order)
	}
}

func TestSplitEventPartBreaksRun(t *testing.T) {
	msg := Message{ID: "m1", Role: RoleAssistant, Parts: []Part{
		{Kind: PartText, Text: "before"},
		{Kind: PartEvent, EventType: "data-visual-image", Data: map[string]any{}},
		{Kind: PartText, Text: "after"},
	}}
	runs := splitMessageRuns(msg, 0, DefaultMsgCountUnit)
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2 (event part must break the run)", len(runs))
	}
	if runs[0].Text != "before" || runs[1].Text != "after" {
		t.Fatalf("runs = %q, %q, want before/after split", runs[0].Text, runs[1].Text)
	}
}

func TestSplitAttachments(t *testing.T) {
	msg := Message{ID: "m1", Role: RoleUser, Parts: []Part{
		{Kind: PartFile, URL: "https://x/a.pdf", Filename: "a.pdf"},
		{Kind: PartText, Text: "please review"},
	}}
	runs := splitMessageRuns(msg, 0, DefaultMsgCountUnit)
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if len(runs[0].Attachments) != 1 || runs[0].Attachments[0].Filename != "a.pdf" {
		t.Fatalf("attachments = %+v, want a.pdf on the text run", runs[0].Attachments)
	}

	// 正文始终未出现: 附件自成一条
	fileOnly := Message{ID: "m2", Role: RoleUser, Parts: []Part{
		{Kind: PartFile, URL: "https://x/b.png"},
	}}
	runs = splitMessageRuns(fileOnly, 1, DefaultMsgCountUnit)
	if len(runs) != 1 || len(runs[0].Attachments) != 1 || runs[0].Text != "" {
		t.Fatalf("runs = %+v, want one attachment-only run", runs)
	}

	// 附件只来自用户消息: 助手消息里的 file part 不收集
	assistant := Message{ID: "m3", Role: RoleAssistant, Parts: []Part{
		{Kind: PartFile, URL: "https://x/c.png"},
		{Kind: PartText, Text: "generated"},
	}}
	runs = splitMessageRuns(assistant, 2, DefaultMsgCountUnit)
	if len(runs) != 1 || len(runs[0].Attachments) != 0 {
		t.Fatalf("runs = %+v, want one run without attachments", runs)
	}
}

func TestSplitWhitespaceDropped(t *testing.T) {
	msg := Message{ID: "m1", Role: RoleAssistant, Parts: []Part{
		{Kind: PartText, Text: "  \n\t "},
	}}
	if runs := splitMessageRuns(msg, 0, DefaultMsgCountUnit); len(runs) != 0 {
		t.Fatalf("runs = %d, want 0 (whitespace-only run drops)", len(runs))
	}
}

func TestSplitFallbackRun(t *testing.T) {
	msg := Message{ID: "m1", Role: RoleUser, Content: "legacy plain content"}
	runs := splitMessageRuns(msg, 0, DefaultMsgCountUnit)
	if len(runs) != 1 || runs[0].Text != "legacy plain content" {
		t.Fatalf("runs = %+v, want one fallback run from raw content", runs)
	}

	// 用户消息即使内容全空也不允许从时间线消失
	empty := Message{ID: "m2", Role: RoleUser, Parts: []Part{{Kind: PartText, Text: "  "}}}
	runs = splitMessageRuns(empty, 1, DefaultMsgCountUnit)
	if len(runs) != 1 || runs[0].ID != "m2-run-0" {
		t.Fatalf("runs = %+v, want one placeholder run for the user message", runs)
	}
}
