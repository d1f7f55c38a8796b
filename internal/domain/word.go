package domain

// Category tags a vocabulary word with one of a fixed set of topics.
type Category string

const (
	CategoryDaily    Category = "日常生活"
	CategoryWork     Category = "工作职场"
	CategoryTech     Category = "科技数码"
	CategoryEmotion  Category = "情感表达"
	CategoryAcademic Category = "学术教育"
	CategoryOther    Category = "其他"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryDaily,
	CategoryWork,
	CategoryTech,
	CategoryEmotion,
	CategoryAcademic,
	CategoryOther,
}

// NormalizeCategory returns c if it is a known category and CategoryOther otherwise.
func NormalizeCategory(c Category) Category {
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// Word is a single saved vocabulary entry.
// OriginalWord is the unique key; entries are never updated in place.
type Word struct {
	OriginalWord       string   `json:"originalWord"`
	PlainExplanation   string   `json:"plainExplanation"`
	LifeAnalogy        string   `json:"lifeAnalogy"`
	EssenceExplanation string   `json:"essenceExplanation"`
	UsageScenarios     []string `json:"usageScenarios"`
	EnglishWord        string   `json:"englishWord"`
	Phonetic           string   `json:"phonetic"`
	Timestamp          int64    `json:"timestamp"`
	Category           Category `json:"category"`
}
