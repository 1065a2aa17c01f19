package scoreboardtypes

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// CustomRule substitutes a letter token for a numeric score.
type CustomRule struct {
	Letter string `json:"letter"`
	Value  int    `json:"value"`
}

// RuleSet resolves score tokens typed into a cell.
type RuleSet map[string]int

// ParseCustomRules decodes the serialized rule list stored on a game.
// An empty string yields an empty rule set.
func ParseCustomRules(raw string) (RuleSet, error) {
	rs := RuleSet{}
	if strings.TrimSpace(raw) == "" {
		return rs, nil
	}
	var rules []CustomRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("invalid custom rules: %w", err)
	}
	for _, r := range rules {
		letter := strings.ToUpper(strings.TrimSpace(r.Letter))
		if letter == "" {
			return nil, fmt.Errorf("invalid custom rules: empty letter")
		}
		rs[letter] = r.Value
	}
	return rs, nil
}

// Resolve maps a letter token or an integer literal to a score.
func (rs RuleSet) Resolve(token string) (int, error) {
	t := strings.TrimSpace(token)
	if v, err := strconv.Atoi(t); err == nil {
		return v, nil
	}
	if v, ok := rs[strings.ToUpper(t)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown score token %q", token)
}

// Letter returns the token rendering v, if a rule maps to it. When several
// letters share a value the alphabetically first one wins.
func (rs RuleSet) Letter(v int) (string, bool) {
	letters := make([]string, 0, len(rs))
	for letter, value := range rs {
		if value == v {
			letters = append(letters, letter)
		}
	}
	if len(letters) == 0 {
		return "", false
	}
	slices.Sort(letters)
	return letters[0], true
}
