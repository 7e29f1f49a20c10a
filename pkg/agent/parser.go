package agent

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// maxActionXMLSize bounds how much reply text the parser will accept.
const maxActionXMLSize = 1 * 1024 * 1024

var actionRegex = regexp.MustCompile(`(?s)<action>.*?</action>`)

// ampersandEntityRegex matches ampersands that already begin an XML
// entity so the fallback escaper does not double-escape them.
var ampersandEntityRegex = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)

// ParseAction extracts the first <action> block from a model reply.
// It returns the parsed action and the text before the block, which is
// the model's reasoning.
//
// Expected format:
//
//	<action>
//	  <name>click</name>
//	  <selector>#submit</selector>
//	</action>
func ParseAction(text string) (*Action, string, error) {
	if len(text) > maxActionXMLSize {
		return nil, "", fmt.Errorf("reply exceeds maximum size of %d bytes", maxActionXMLSize)
	}

	loc := actionRegex.FindStringIndex(text)
	if loc == nil {
		return nil, strings.TrimSpace(text), fmt.Errorf("no action block found in reply")
	}

	thinking := strings.TrimSpace(text[:loc[0]])
	actionXML := text[loc[0]:loc[1]]

	var action Action
	if err := unmarshalXMLWithFallback([]byte(actionXML), &action); err != nil {
		snippet := actionXML
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, thinking, fmt.Errorf("failed to unmarshal action XML: %w\nXML snippet: %s", err, snippet)
	}

	if err := action.Validate(); err != nil {
		return nil, thinking, err
	}

	return &action, thinking, nil
}

// HasAction reports whether the text contains an action block.
func HasAction(text string) bool {
	return actionRegex.MatchString(text)
}

// unmarshalXMLWithFallback attempts to unmarshal XML, retrying with
// unescaped ampersands escaped. Models routinely emit bare & characters
// in selectors and URLs.
func unmarshalXMLWithFallback(data []byte, v any) error {
	if err := xml.Unmarshal(data, v); err == nil {
		return nil
	}
	return xml.Unmarshal(escapeUnescapedAmpersands(data), v)
}

// escapeUnescapedAmpersands replaces bare & with &amp; while leaving
// existing entities intact.
func escapeUnescapedAmpersands(data []byte) []byte {
	text := string(data)

	entityPositions := make(map[int]bool)
	for _, match := range ampersandEntityRegex.FindAllStringIndex(text, -1) {
		entityPositions[match[0]] = true
	}

	var result strings.Builder
	result.Grow(len(text) + 20)
	for i := 0; i < len(text); i++ {
		if text[i] == '&' && !entityPositions[i] {
			result.WriteString("&amp;")
		} else {
			result.WriteByte(text[i])
		}
	}
	return []byte(result.String())
}
