// deck.go — 视觉稿 (visual_*) 族: 幻灯片按页号合并入 slide map,
// 乱序与重发 payload 天然收敛; 同一套合并逻辑同时服务槽位更新与
// 最新值投影的折叠重放。
package timeline

import "sort"

func handleDeckEvent(e *Engine, data map[string]any, ev StructuredEvent, order float64) {
	id := extractFirstString(data, "artifact_id", "artifactId")
	if id == "" {
		id = defaultDeckKey
	}
	slot := e.ensureSlotLocked("deck", id, SlotSlideDeck)
	if slot.Deck == nil {
		slot.Deck = &DeckContent{Slides: make(map[int]DeckSlide)}
	}

	// deck 模式推断: 一经判定即粘滞, 后续含糊 payload 不再改写
	if !slot.modeLocked {
		if mode := inferDeckMode(data); mode != SlotSlideDeck {
			slot.Kind = mode
			slot.modeLocked = true
		}
	}
	if t := extractFirstString(data, "deck_title", "deckTitle"); t != "" {
		slot.Title = t
	}

	typ := NormalizeEventType(ev.Type)
	mergeDeckEvent(slot.Deck, typ, data)

	switch {
	case typ == EventVisualPDF:
		// PDF 产出即整稿完成
		advanceStatus(slot, StatusCompleted)
	default:
		if st := payloadStatus(data); st != "" {
			advanceStatus(slot, st)
		} else {
			advanceStatus(slot, deriveDeckStatus(slot.Deck))
		}
	}
	mergeExtra(slot, data, "artifact_id", "artifactId", "deck_title", "deckTitle",
		"slide_number", "slideNumber", "number", "index", "title", "description",
		"structured_prompt", "structuredPrompt", "prompt",
		"image_url", "imageUrl", "url", "thumbnail_url", "thumbnailUrl",
		"pdf_url", "pdfUrl", "status", "state")
	touchSlotLocked(slot, order)
}

// inferDeckMode 从 payload 线索推断 deck 形态; 无线索按普通幻灯片。
func inferDeckMode(data map[string]any) SlotKind {
	switch extractFirstString(data, "deck_mode", "deckMode", "mode") {
	case "character_sheet", "character-sheet":
		return SlotCharacterSheetDeck
	case "comic_page", "comic-page", "comic":
		return SlotComicPageDeck
	}
	if extractFirstString(data, "character_name", "characterName", "sheet_type", "sheetType") != "" {
		return SlotCharacterSheetDeck
	}
	if _, ok := extractInt(data, "panel_count", "panelCount", "page_number", "pageNumber"); ok {
		return SlotComicPageDeck
	}
	return SlotSlideDeck
}

// mergeDeckEvent 把一个 visual_* payload 合入 deck。
// 页级字段按 slide_number 定位覆盖; 缺页号的 plan payload 视为稿级元信息。
func mergeDeckEvent(deck *DeckContent, typ string, data map[string]any) {
	if deck.Slides == nil {
		deck.Slides = make(map[int]DeckSlide)
	}
	if typ == EventVisualPDF {
		if u := extractFirstString(data, "pdf_url", "pdfUrl", "url"); u != "" {
			deck.PDFURL = u
		}
		return
	}

	num, ok := extractInt(data, "slide_number", "slideNumber", "number", "index")
	if !ok {
		return
	}
	slide := deck.Slides[num]
	slide.SlideNumber = num
	if t := extractFirstString(data, "title"); t != "" {
		slide.Title = t
	}
	if d := extractFirstString(data, "description"); d != "" {
		slide.Description = d
	}
	switch typ {
	case EventVisualPrompt:
		if v, exists := firstPresent(data, "structured_prompt", "structuredPrompt", "prompt"); exists {
			slide.StructuredPrompt = parseStructuredPrompt(v)
		}
	case EventVisualImage:
		if u := extractFirstString(data, "image_url", "imageUrl", "url"); u != "" {
			slide.ImageURL = u
		}
		if u := extractFirstString(data, "thumbnail_url", "thumbnailUrl"); u != "" {
			slide.ThumbnailURL = u
		}
	}
	deck.Slides[num] = slide
}

// SortedSlides 按页号升序返回页列表 (渲染顺序与到达顺序无关)。
func (d *DeckContent) SortedSlides() []DeckSlide {
	if d == nil || len(d.Slides) == 0 {
		return nil
	}
	nums := make([]int, 0, len(d.Slides))
	for n := range d.Slides {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	out := make([]DeckSlide, 0, len(nums))
	for _, n := range nums {
		out = append(out, d.Slides[n])
	}
	return out
}

// deriveDeckStatus 推导状态: 有页且每页都有图才算完成。
func deriveDeckStatus(deck *DeckContent) SlotStatus {
	if len(deck.Slides) == 0 {
		return StatusStreaming
	}
	for _, s := range deck.Slides {
		if s.ImageURL == "" {
			return StatusStreaming
		}
	}
	return StatusCompleted
}

// firstPresent 返回第一个存在的键值 (区别于 extractFirstString, 不要求字符串)。
func firstPresent(data map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			return v, true
		}
	}
	return nil, false
}
