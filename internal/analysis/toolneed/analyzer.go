// Package toolneed 仅凭关键词判断问题是否需要计算、资格评估或对比工具。
package toolneed

import "strings"

// Bucket 表示一类工具需求。
type Bucket string

const (
	Calculation Bucket = "calculate"
	Eligibility Bucket = "eligibility"
	Comparison  Bucket = "compare"
)

// bucketOrder 固定命中类别的输出顺序
var bucketOrder = []Bucket{Calculation, Eligibility, Comparison}

var keywordBuckets = map[Bucket][]string{
	Calculation: {"calculate", "estimate", "cost", "price", "premium", "how much"},
	Eligibility: {"eligible", "qualify", "can i get", "approved", "health"},
	Comparison:  {"compare", "difference", "versus", "vs", "better"},
}

// intentBuckets 意图标签直接映射到类别
var intentBuckets = map[string]Bucket{
	"PREMIUMS":    Calculation,
	"ELIGIBILITY": Eligibility,
}

// Decision 记录命中的工具类别以及触发它们的关键词。
type Decision struct {
	Buckets  []Bucket
	Keywords []string
}

// Any 是否至少命中一个类别
func (d Decision) Any() bool { return len(d.Buckets) > 0 }

// Has 是否命中类别 b
func (d Decision) Has(b Bucket) bool {
	for _, got := range d.Buckets {
		if got == b {
			return true
		}
	}
	return false
}

// Analyze 按意图与关键词子串匹配判断是否需要工具。匹配不区分大小写。
func Analyze(question, intent string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(question))
	intent = strings.ToUpper(strings.TrimSpace(intent))

	matched := make(map[Bucket]bool, len(bucketOrder))
	var keywords []string

	if b, ok := intentBuckets[intent]; ok {
		matched[b] = true
	}
	if normalized != "" {
		for _, b := range bucketOrder {
			for _, word := range keywordBuckets[b] {
				if strings.Contains(normalized, word) {
					matched[b] = true
					keywords = append(keywords, word)
				}
			}
		}
	}

	var d Decision
	for _, b := range bucketOrder {
		if matched[b] {
			d.Buckets = append(d.Buckets, b)
		}
	}
	d.Keywords = keywords
	return d
}

// Keywords 返回类别 b 关键词列表的副本
func Keywords(b Bucket) []string {
	return append([]string(nil), keywordBuckets[b]...)
}
