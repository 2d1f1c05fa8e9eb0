package notify

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

var resourceNouns = map[domain.ResourceKind]string{
	domain.ResourceAIScan:           "AI scans",
	domain.ResourceGenerationExport: "code exports",
	domain.ResourceAPICall:          "API calls",
}

var sentenceCaser = cases.Title(language.English)

func resourceNoun(kind domain.ResourceKind) string {
	if noun, ok := resourceNouns[kind]; ok {
		return noun
	}
	return string(kind)
}

// Subject is the one-line alert text, e.g. "2 AI scans left this month".
func (e Event) Subject() string {
	switch e.Kind {
	case KindExhausted:
		return fmt.Sprintf("You've used all your %s this month", resourceNoun(e.Resource))
	default:
		return fmt.Sprintf("%d %s left this month", int64(e.Remaining), resourceNoun(e.Resource))
	}
}

// Body is the longer explanation used by email.
func (e Event) Body() string {
	plan := sentenceCaser.String(string(e.Tier))
	switch e.Kind {
	case KindExhausted:
		return fmt.Sprintf("Your %s plan includes %s %s per month and you've used them all. "+
			"Upgrade your plan to keep going, or wait for your allowance to reset next month.",
			plan, e.Limit, resourceNoun(e.Resource))
	default:
		return fmt.Sprintf("You have %d of %s %s left on your %s plan this month.",
			int64(e.Remaining), e.Limit, resourceNoun(e.Resource), plan)
	}
}
