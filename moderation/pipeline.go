package moderation

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"

	"matchwire/errors"
)

// Verdict is the outcome of running a message through the pipeline.
// A blocked message must never be persisted. A flagged message is persisted
// with Content rewritten (profane tokens masked).
type Verdict struct {
	Content   string
	Blocked   bool
	Violation errors.ViolationType
	Reason    string
	Flagged   bool
	Words     []string
	Lang      string
}

// Pipeline runs the content checks in a fixed order. The first hard violation
// short-circuits; profanity never blocks, it only rewrites.
type Pipeline struct {
	moderator Moderator
	log       *slog.Logger
}

func NewPipeline(moderator Moderator, log *slog.Logger) *Pipeline {
	return &Pipeline{moderator: moderator, log: log}
}

// Number words are blocked anywhere in a message. This is deliberately
// strict: spelling out a phone number digit by digit is the most common
// circumvention attempt on the platform.
var numberWords = map[string]struct{}{
	"zero": {}, "one": {}, "two": {}, "three": {}, "four": {},
	"five": {}, "six": {}, "seven": {}, "eight": {}, "nine": {},
	"ten": {}, "oh": {}, "double": {}, "triple": {},
}

var emailProviders = []string{
	"gmail", "yahoo", "hotmail", "outlook", "protonmail", "rediffmail", "icloud", "zoho",
}

var socialPhrases = []string{
	"whatsapp", "whats app", "telegram", "instagram", "insta", "snapchat",
	"facebook", "skype", "viber", "signal app",
	"add me on", "dm me", "text me", "call me", "reach me on", "contact me on", "find me on",
}

var (
	emailPattern  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+\s*(@|\[at\]|\(at\))\s*[a-z0-9.\-]+`)
	urlPattern    = regexp.MustCompile(`(?i)\b(https?://|www\.)\S+`)
	domainPattern = regexp.MustCompile(`(?i)\b[a-z0-9\-]+\.(com|net|org|io|co|in|me|info)\b`)
)

// Check applies every rule in order and returns a single Verdict.
func (p *Pipeline) Check(content string) Verdict {
	info := whatlanggo.Detect(content)
	lang := info.Lang.Iso6391()

	if v, ok := p.checkNumbers(content); ok {
		v.Lang = lang
		return v
	}
	if v, ok := p.checkEmail(content); ok {
		v.Lang = lang
		return v
	}
	if v, ok := p.checkURL(content); ok {
		v.Lang = lang
		return v
	}
	if v, ok := p.checkSocial(content); ok {
		v.Lang = lang
		return v
	}

	sanitized, words := p.moderator.Censor(content)
	if len(words) > 0 {
		p.log.Info("profanity masked", "words", len(words), "lang", lang)
		return Verdict{Content: sanitized, Flagged: true, Words: words, Lang: lang}
	}
	return Verdict{Content: content, Lang: lang}
}

// checkNumbers blocks on any digit character or spelled-out number token.
func (p *Pipeline) checkNumbers(content string) (Verdict, bool) {
	hasDigit := strings.ContainsFunc(content, unicode.IsDigit)
	if !hasDigit {
		for _, token := range tokenize(content) {
			if _, ok := numberWords[token]; ok {
				hasDigit = true
				break
			}
		}
	}
	if !hasDigit {
		return Verdict{}, false
	}
	return p.block(errors.ViolationSuspiciousNumbers,
		"sharing phone numbers or other digits is not allowed in messages"), true
}

func (p *Pipeline) checkEmail(content string) (Verdict, bool) {
	if emailPattern.MatchString(content) {
		return p.block(errors.ViolationEmail, "sharing email addresses is not allowed in messages"), true
	}
	lowered := strings.ToLower(content)
	for _, provider := range emailProviders {
		if strings.Contains(lowered, provider) {
			return p.block(errors.ViolationEmail, "sharing email addresses is not allowed in messages"), true
		}
	}
	return Verdict{}, false
}

func (p *Pipeline) checkURL(content string) (Verdict, bool) {
	if urlPattern.MatchString(content) || domainPattern.MatchString(content) {
		return p.block(errors.ViolationURL, "sharing links or website addresses is not allowed in messages"), true
	}
	return Verdict{}, false
}

func (p *Pipeline) checkSocial(content string) (Verdict, bool) {
	lowered := strings.ToLower(content)
	for _, phrase := range socialPhrases {
		if strings.Contains(lowered, phrase) {
			return p.block(errors.ViolationSocialContact,
				"sharing social media or contact details is not allowed in messages"), true
		}
	}
	return Verdict{}, false
}

func (p *Pipeline) block(violation errors.ViolationType, reason string) Verdict {
	p.log.Info(fmt.Sprintf("message blocked: %s", violation))
	return Verdict{Blocked: true, Violation: violation, Reason: reason}
}

func tokenize(content string) []string {
	return strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
