package service

import (
	"strings"
	"time"

	"pai-semantic-go/internal/model"
)

var contextKeywords = map[string]string{
	"coding":        "programming development software code",
	"research":      "study analysis investigation findings",
	"meeting":       "discussion agenda notes collaboration",
	"writing":       "draft document editing content",
	"planning":      "schedule roadmap goals strategy",
	"communication": "email message team collaboration",
}

var synonyms = map[string]string{
	"task":     "todo assignment work job",
	"meeting":  "call conference discussion sync",
	"document": "file doc paper report",
	"project":  "initiative program effort",
	"email":    "mail message inbox",
	"bug":      "issue defect error problem",
	"note":     "memo record annotation",
}

// QueryProcessor 用工作上下文、时间段和同义词扩展查询文本。纯文本变换，不做向量化。
type QueryProcessor struct {
	now func() time.Time
}

// NewQueryProcessor 创建查询处理器。now 为 nil 时使用 time.Now。
func NewQueryProcessor(now func() time.Time) *QueryProcessor {
	if now == nil {
		now = time.Now
	}
	return &QueryProcessor{now: now}
}

// ContextKeywords 返回工作上下文对应的关键词，未知上下文返回空串。
func ContextKeywords(workContext string) string {
	return contextKeywords[strings.ToLower(strings.TrimSpace(workContext))]
}

// TimeOfDayKeywords 返回时间段关键词：morning [5,12)、afternoon [12,17)、evening [17,22)，其余为 night。
func TimeOfDayKeywords(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	case h >= 17 && h < 22:
		return "evening"
	default:
		return "night"
	}
}

// Enhance 依次追加上下文关键词、时间段关键词和识别出的术语的同义词。
func (p *QueryProcessor) Enhance(query string, sc model.SearchContext) string {
	query = strings.TrimSpace(query)
	parts := []string{query}

	if kw := ContextKeywords(sc.WorkContext); kw != "" {
		parts = append(parts, kw)
	}
	now := sc.Now
	if now.IsZero() {
		now = p.now()
	}
	parts = append(parts, TimeOfDayKeywords(now))

	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if syn, ok := synonyms[w]; ok && !seen[w] {
			seen[w] = true
			parts = append(parts, syn)
		}
	}
	return strings.Join(parts, " ")
}
