// Package security sanitizes tool output before it re-enters agent context.
// Tool responses originate from untrusted content (issue text, file
// contents, HTTP bodies) and may carry prompt-injection vectors: control
// tags, invisible unicode, hidden comments. Every transform is a pure
// function of its input so sanitization is reproducible.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Transform rewrites a payload value. Payloads are strings, maps, or lists;
// transforms apply to every string leaf. A transform returning an error
// causes the pipeline to fail closed.
type Transform func(payload any) (any, error)

// Canonical transform names, referenced from policy files.
const (
	TransformEncodeDangerousTags  = "encode_dangerous_tags"
	TransformStripHiddenComments  = "strip_hidden_comments"
	TransformStripUnicodeTags     = "strip_unicode_tags"
	TransformStripMermaidComments = "strip_mermaid_comments"
)

// DefaultChain is the maximal transform chain applied to tools without a
// policy override, in order.
func DefaultChain() []string {
	return []string{
		TransformEncodeDangerousTags,
		TransformStripHiddenComments,
		TransformStripUnicodeTags,
		TransformStripMermaidComments,
	}
}

// Registry maps transform names to implementations. The set is fixed at
// compile time; policy files may only reference names registered here.
func Registry() map[string]Transform {
	return map[string]Transform{
		TransformEncodeDangerousTags:  EncodeDangerousTags,
		TransformStripHiddenComments:  StripHiddenComments,
		TransformStripUnicodeTags:     StripUnicodeTags,
		TransformStripMermaidComments: StripMermaidComments,
	}
}

// applyToStrings walks the payload structure and rewrites every string leaf.
// Unsupported leaf types are rejected: anything that has not been explicitly
// considered must not pass through a sanitizer unexamined.
func applyToStrings(payload any, fn func(string) string) (any, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case string:
		return fn(v), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			sanitized, err := applyToStrings(item, fn)
			if err != nil {
				return nil, err
			}
			out[k] = sanitized
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			sanitized, err := applyToStrings(item, fn)
			if err != nil {
				return nil, err
			}
			out[i] = sanitized
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
}

// dangerousTags are control tags that would let tool output impersonate the
// prompt scaffolding.
var dangerousTags = []string{"goal", "system"}

var dangerousTagPatterns = buildDangerousTagPatterns()

type tagPattern struct {
	re          *regexp.Regexp
	replacement string
}

func buildDangerousTagPatterns() []tagPattern {
	var patterns []tagPattern
	for _, tag := range dangerousTags {
		// Literal <goal>, </goal> with optional internal whitespace, plus the
		// JSON-escaped forms <goal> and the double-escaped variant.
		forms := []string{
			`<\s*(/?)\s*` + tag + `\s*>`,
			`\\u003[cC]\s*(/?)\s*` + tag + `\s*\\u003[eE]`,
			`\\\\u003[cC]\s*(/?)\s*` + tag + `\s*\\\\u003[eE]`,
		}
		for _, form := range forms {
			patterns = append(patterns, tagPattern{
				re:          regexp.MustCompile(`(?i)` + form),
				replacement: `&lt;${1}` + tag + `&gt;`,
			})
		}
	}
	return patterns
}

// EncodeDangerousTags HTML-encodes control tags (<goal>, <system>) in every
// string leaf, including JSON-escaped spellings.
func EncodeDangerousTags(payload any) (any, error) {
	return applyToStrings(payload, func(s string) string {
		for _, p := range dangerousTagPatterns {
			s = p.re.ReplaceAllString(s, p.replacement)
		}
		return s
	})
}

var (
	htmlCommentRe        = regexp.MustCompile(`(?s)<!--.*?-->`)
	escapedCommentRe     = regexp.MustCompile(`(?is)\\+u003[cC]!--.*?--\\+u003[eE]`)
	backslashCommentRe   = regexp.MustCompile(`(?s)\\+<!--.*?--\\+>`)
	entityCommentRe      = regexp.MustCompile(`(?s)&lt;!--.*?--&gt;`)
	jsonSurrogatePairsRe = regexp.MustCompile(`(?i)\\udb40\\ud[c-f][0-9a-f][0-9a-f]`)
)

// StripHiddenComments removes HTML comments in all their spellings: literal,
// JSON-escaped, backslash-escaped, and entity-encoded. Hidden comments are a
// common carrier for injected instructions in rendered-markdown sources.
func StripHiddenComments(payload any) (any, error) {
	return applyToStrings(payload, func(s string) string {
		if !strings.Contains(s, "<!--") &&
			!strings.Contains(s, `u003c!--`) && !strings.Contains(s, `u003C!--`) &&
			!strings.Contains(s, `\<!--`) && !strings.Contains(s, "&lt;!--") {
			return s
		}
		s = escapedCommentRe.ReplaceAllString(s, "")
		s = backslashCommentRe.ReplaceAllString(s, "")
		s = htmlCommentRe.ReplaceAllString(s, "")
		s = entityCommentRe.ReplaceAllString(s, "")
		return s
	})
}

// StripUnicodeTags removes invisible Unicode tag characters
// (U+E0000–U+E007F) and variation selectors in the supplementary plane
// (U+E0100–U+E01EF), both as raw runes and as JSON-escaped UTF-16 surrogate
// pairs. These ranges are invisible in rendered text but survive copy-paste,
// making them a steganographic channel for hidden instructions.
func StripUnicodeTags(payload any) (any, error) {
	return applyToStrings(payload, func(s string) string {
		s = jsonSurrogatePairsRe.ReplaceAllString(s, "")

		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			if (r >= 0xE0000 && r <= 0xE007F) || (r >= 0xE0100 && r <= 0xE01EF) {
				continue
			}
			b.WriteRune(r)
		}
		return b.String()
	})
}

var (
	mermaidBlockRe        = regexp.MustCompile("(?is)```\\s*mermaid\\b.*?```")
	escapedMermaidBlockRe = regexp.MustCompile("(?is)```\\\\+n\\s*mermaid\\b.*?```")
	mermaidDirectiveRe    = regexp.MustCompile(`(?s)%%\{.*?\}%%`)
	mermaidLineCommentRe  = regexp.MustCompile(`(?m)(^|\\+n)\s*%%[^\n]*`)
	blankRunsRe           = regexp.MustCompile(`(\n\s*){3,}`)
)

// StripMermaidComments removes %% comment lines and %%{...}%% directives
// from inside mermaid code fences, leaving the diagram structure intact.
func StripMermaidComments(payload any) (any, error) {
	process := func(block string) string {
		block = mermaidDirectiveRe.ReplaceAllString(block, "")
		block = mermaidLineCommentRe.ReplaceAllString(block, "$1")
		block = blankRunsRe.ReplaceAllString(block, "\n\n")
		return block
	}
	return applyToStrings(payload, func(s string) string {
		s = mermaidBlockRe.ReplaceAllStringFunc(s, process)
		s = escapedMermaidBlockRe.ReplaceAllStringFunc(s, process)
		return s
	})
}
