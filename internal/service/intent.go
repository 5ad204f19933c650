package service

import "strings"

// Intent 表示一轮消息的路由结果。
type Intent int

const (
	// IntentTool 走工具调用回路（默认路径，误判由置信度闸门兜底）。
	IntentTool Intent = iota
	// IntentFAQ 优先尝试 FAQ 检索问答。
	IntentFAQ
)

// IntentClassifier 在每轮对话开始时对消息做一次无状态分类。
// 默认实现是廉价的词面判定；需要更强的意图识别时可以整体替换。
type IntentClassifier interface {
	Classify(message string) Intent
}

// 疑问线索与预约关键词。命中疑问线索且不含任何预约关键词才判为 FAQ。
var (
	questionCues = []string{"what", "where", "when", "how", "who", "why", "?"}

	bookingKeywords = []string{
		"book", "schedule", "appointment", "reserve",
		"available", "availability", "slot",
	}
)

type keywordClassifier struct{}

// NewKeywordClassifier 创建默认的词面意图分类器。
func NewKeywordClassifier() IntentClassifier {
	return keywordClassifier{}
}

// Classify 对消息做词面判定。
func (keywordClassifier) Classify(message string) Intent {
	lower := strings.ToLower(message)

	isQuestion := false
	for _, cue := range questionCues {
		if strings.Contains(lower, cue) {
			isQuestion = true
			break
		}
	}

	hasBookingIntent := false
	for _, kw := range bookingKeywords {
		if strings.Contains(lower, kw) {
			hasBookingIntent = true
			break
		}
	}

	if isQuestion && !hasBookingIntent {
		return IntentFAQ
	}
	return IntentTool
}
