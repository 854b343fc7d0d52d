package check

import (
	"strings"

	"github.com/medama-io/go-useragent"
)

// crawler tokens the parser does not always flag
var crawlerTokens = []string{
	"googlebot",
	"bingbot",
	"baiduspider",
	"yandex.com/bots",
	"sogou web spider",
	"applebot",
	"duckduckbot",
	"facebookexternalhit",
	"semrushbot",
	"ahrefsbot",
	"petalbot",
	"gptbot",
	"headlesschrome",
	"lighthouse",
}

// BotDetector classifies storefront user agents. It is safe for concurrent use.
type BotDetector struct {
	parser *useragent.Parser
}

func NewBotDetector() *BotDetector {
	return &BotDetector{parser: useragent.NewParser()}
}

// IsBot reports whether ua belongs to a known crawler. An empty agent is
// treated as a bot; real browsers always send one.
func (b *BotDetector) IsBot(ua string) bool {
	if strings.TrimSpace(ua) == "" {
		return true
	}
	lower := strings.ToLower(ua)
	for _, token := range crawlerTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return b.parser.Parse(ua).IsBot()
}
