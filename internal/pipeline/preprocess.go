// Package pipeline 定义了文档预处理与后台索引的核心流程。
package pipeline

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"pai-semantic-go/internal/model"
)

// 预处理步骤名，记录在向量元数据中。
const (
	StepKeywords = "keyword_extraction"
	StepEntities = "entity_extraction"
	StepTopics   = "topic_classification"
	StepSummary  = "summary_generation"
	StepQuality  = "quality_assessment"
)

const (
	minKeywordLen     = 4
	summarySentences  = 2
	summaryMaxRunes   = 200
	shortBodyRunes    = 100
	longSentenceWords = 25
)

var stopwords = map[string]struct{}{
	"about": {}, "above": {}, "after": {}, "again": {}, "against": {}, "because": {}, "been": {},
	"before": {}, "being": {}, "below": {}, "between": {}, "both": {}, "could": {}, "does": {},
	"doing": {}, "down": {}, "during": {}, "each": {}, "from": {}, "further": {}, "have": {},
	"having": {}, "here": {}, "into": {}, "more": {}, "most": {}, "much": {}, "must": {},
	"only": {}, "other": {}, "over": {}, "same": {}, "should": {}, "some": {}, "such": {},
	"than": {}, "that": {}, "their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "those": {}, "through": {}, "under": {}, "until": {}, "very": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"with": {}, "would": {}, "your": {}, "also": {}, "just": {}, "like": {}, "many": {},
}

var topicTable = []struct {
	name     model.TopicCategory
	keywords []string
}{
	{"technology", []string{"software", "code", "programming", "computer", "data", "algorithm", "artificial", "intelligence", "machine", "learning", "cloud", "api"}},
	{"productivity", []string{"productivity", "efficiency", "task", "tasks", "workflow", "schedule", "focus", "tools", "automation", "time"}},
	{"business", []string{"business", "market", "sales", "revenue", "customer", "strategy", "finance", "budget"}},
	{"communication", []string{"communication", "email", "meeting", "message", "team", "collaboration", "remote", "discussion"}},
	{"research", []string{"research", "study", "analysis", "experiment", "paper", "hypothesis", "findings"}},
	{"health", []string{"health", "wellness", "exercise", "stress", "sleep", "nutrition"}},
}

const monthNames = `January|February|March|April|May|June|July|August|September|October|November|December`

var entityPatterns = []struct {
	typ model.EntityType
	re  *regexp.Regexp
}{
	{model.EntityPerson, regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`)},
	{model.EntityOrganization, regexp.MustCompile(`\b(?:[A-Z][A-Za-z&]*\s+)+(?:Inc|Corp|Corporation|LLC|Ltd|Company|Group)\b\.?`)},
	{model.EntityDate, regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b(?:` + monthNames + `)\s+\d{1,2}(?:,\s*\d{4})?`)},
	{model.EntityMoney, regexp.MustCompile(`\$\d[\d,]*(?:\.\d+)?(?:\s?(?:million|billion|thousand))?|\b\d+(?:\.\d+)?\s?(?:USD|EUR|dollars|euros)\b`)},
}

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Options 控制一次预处理。
type Options struct {
	MaxKeywords     int
	ExtractEntities bool
	ExtractTopics   bool
	GenerateSummary bool
}

// Result 是预处理的输出。
type Result struct {
	Document model.Document
	Quality  model.QualityAssessment
	Steps    []string
}

// Preprocessor 对文档做关键词、实体、主题、摘要抽取和质量评估。无状态，可并发使用。
type Preprocessor struct {
	defaults Options
}

// NewPreprocessor 创建预处理器，defaults 用于请求未覆盖的选项。
func NewPreprocessor(defaults Options) *Preprocessor {
	if defaults.MaxKeywords <= 0 {
		defaults.MaxKeywords = 10
	}
	return &Preprocessor{defaults: defaults}
}

// Resolve 用请求中的覆盖项合并默认选项。
func (p *Preprocessor) Resolve(o model.IndexOptions) Options {
	opts := p.defaults
	if o.MaxKeywords > 0 {
		opts.MaxKeywords = o.MaxKeywords
	}
	if o.ExtractEntities != nil {
		opts.ExtractEntities = *o.ExtractEntities
	}
	if o.ExtractTopics != nil {
		opts.ExtractTopics = *o.ExtractTopics
	}
	if o.GenerateSummary != nil {
		opts.GenerateSummary = *o.GenerateSummary
	}
	return opts
}

// Process 返回补全后的文档副本，不修改入参。
func (p *Preprocessor) Process(doc model.Document, opts Options) Result {
	out := doc
	out.Keywords = append([]string(nil), doc.Keywords...)
	var steps []string

	if len(out.Keywords) == 0 {
		out.Keywords = ExtractKeywords(doc.FullText(), opts.MaxKeywords)
		steps = append(steps, StepKeywords)
	}
	if opts.ExtractEntities {
		out.Entities = ExtractEntities(doc.Body)
		steps = append(steps, StepEntities)
	}
	if opts.ExtractTopics {
		out.Topics = ClassifyTopics(doc.FullText(), out.Keywords)
		steps = append(steps, StepTopics)
	}
	if opts.GenerateSummary && strings.TrimSpace(out.Summary) == "" {
		out.Summary = Summarize(doc.Body)
		steps = append(steps, StepSummary)
	}
	quality := AssessQuality(out)
	steps = append(steps, StepQuality)

	return Result{Document: out, Quality: quality, Steps: steps}
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ExtractKeywords 按词频取前 n 个关键词，同频按首次出现顺序。
// 忽略不超过 3 个字符的词和停用词。
func ExtractKeywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	freq := make(map[string]int)
	var order []string
	for _, w := range words(text) {
		if utf8.RuneCountInString(w) < minKeywordLen {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if freq[w] == 0 {
			order = append(order, w)
		}
		freq[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// ExtractEntities 用规则抽取人名、组织、日期与金额，按出现位置排序。
func ExtractEntities(text string) []model.Entity {
	var entities []model.Entity
	for _, p := range entityPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			entities = append(entities, model.Entity{
				Text:  strings.TrimSpace(text[loc[0]:loc[1]]),
				Type:  p.typ,
				Start: loc[0],
				End:   loc[1],
			})
		}
	}
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	return entities
}

// ClassifyTopics 按主题关键词表匹配，置信度为命中数除以 3（上限 1）。
func ClassifyTopics(text string, keywords []string) []model.Topic {
	present := make(map[string]struct{})
	for _, w := range words(text) {
		present[w] = struct{}{}
	}
	for _, k := range keywords {
		present[strings.ToLower(k)] = struct{}{}
	}

	var topics []model.Topic
	for _, entry := range topicTable {
		var matched []string
		for _, k := range entry.keywords {
			if _, ok := present[k]; ok {
				matched = append(matched, k)
			}
		}
		if len(matched) == 0 {
			continue
		}
		topics = append(topics, model.Topic{
			Name:            entry.name,
			Confidence:      math.Min(1, float64(len(matched))/3),
			MatchedKeywords: matched,
		})
	}
	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Confidence > topics[j].Confidence })
	return topics
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Summarize 取前两句，超过 200 个字符时截断并以 "..." 结尾。
func Summarize(body string) string {
	ss := sentences(body)
	if len(ss) > summarySentences {
		ss = ss[:summarySentences]
	}
	summary := strings.Join(ss, " ")
	runes := []rune(summary)
	if len(runes) > summaryMaxRunes {
		return string(runes[:summaryMaxRunes-3]) + "..."
	}
	return summary
}

// AssessQuality 计算完整度、可读性和综合评分：score = 0.6*completeness + 0.4*readability。
func AssessQuality(doc model.Document) model.QualityAssessment {
	var issues []model.QualityIssue
	title := strings.TrimSpace(doc.Title)
	body := strings.TrimSpace(doc.Body)
	bodyLen := utf8.RuneCountInString(body)

	completeness := 0.0
	if title != "" {
		completeness += 0.3
	} else {
		issues = append(issues, model.QualityIssue{Type: model.IssueMissingTitle, Message: "document has no title", Severity: model.SeverityHigh})
	}
	completeness += 0.5 * math.Min(1, float64(bodyLen)/shortBodyRunes)
	if bodyLen < shortBodyRunes {
		issues = append(issues, model.QualityIssue{Type: model.IssueShortBody, Message: "body is too short", Severity: model.SeverityMedium})
	}
	if len(doc.Keywords) > 0 {
		completeness += 0.2
	} else {
		issues = append(issues, model.QualityIssue{Type: model.IssueNoKeywords, Message: "no keywords", Severity: model.SeverityLow})
	}

	readability := 0.0
	ss := sentences(body)
	ws := strings.Fields(body)
	if len(ss) > 0 && len(ws) > 0 {
		avgSentence := float64(len(ws)) / float64(len(ss))
		letters := 0
		for _, w := range ws {
			letters += utf8.RuneCountInString(w)
		}
		avgWord := float64(letters) / float64(len(ws))

		sentenceScore := 1.0
		if avgSentence > 20 {
			sentenceScore = math.Max(0, 1-(avgSentence-20)/20)
		}
		wordScore := 1.0
		if avgWord > 6 {
			wordScore = math.Max(0, 1-(avgWord-6)/6)
		}
		readability = (sentenceScore + wordScore) / 2
		if avgSentence > longSentenceWords {
			issues = append(issues, model.QualityIssue{Type: model.IssueLongSentences, Message: "sentences are long on average", Severity: model.SeverityLow})
		}
	}

	return model.QualityAssessment{
		Score:        round3(0.6*completeness + 0.4*readability),
		Completeness: round3(completeness),
		Readability:  round3(readability),
		Issues:       issues,
	}
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
