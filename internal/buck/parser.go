// Package buck drives and observes the buck build tool: invoking builds,
// writing its per-checkout configuration artifacts, and scraping cache
// outcomes and rule keys out of its logs.
package buck

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"

	"buckperf/internal/models"
)

// ErrInconsistentLogs indicates buck's two log streams disagreed: the build
// log referenced a rule key that never appeared in the verbose output. Any
// benchmark conclusion drawn from such logs would be unreliable, so parsing
// fails instead of dropping the record.
var ErrInconsistentLogs = errors.New("build log and verbose output are inconsistent")

// The two logs are a versioned external contract owned by buck. Keep the
// line grammars here, behind the parser, so they can evolve without touching
// the benchmark state machine.
var (
	// buildResultLine matches one "rule finished" line in buck-out/bin/build.log:
	// rule name, result, cache outcome, success type, rule key.
	buildResultLine = regexp.MustCompile(
		`BuildRuleFinished\((?P<rule_name>[\w_\-:#/,]+)\): (?P<result>[A-Z_]+) ` +
			`(?P<cache_result>[A-Z_]+) (?P<success_type>[A-Z_]+) ` +
			`(?P<rule_key>[0-9a-f]*)`)

	// RuleKeyStdoutPattern matches rule key debug lines embedded in the
	// build's own stdout when no verbose log file was produced.
	RuleKeyStdoutPattern = regexp.MustCompile(
		`^INFO: RuleKey (?P<rule_key>[0-9a-f]*)=(?P<rule_key_debug>.*)$`)

	// RuleKeyVerbosePattern matches rule key debug lines in the verbose
	// buck-out/log/buck-0.log file.
	RuleKeyVerbosePattern = regexp.MustCompile(
		`.*\[[\w ]+\](?:\[command:[0-9a-f-]+\])?\[tid:\d+\]` +
			`\[com\.facebook\.buck\.rules\.RuleKey[$.]?Builder\] ` +
			`RuleKey (?P<rule_key>[0-9a-f]+)=(?P<rule_key_debug>.*)$`)
)

// Rule key debug descriptions serialize a rule's entire input set on one
// line, so lines can run far past bufio's default limit.
const maxLogLine = 4 * 1024 * 1024

// ParseRuleKeys scans r line by line with the given grammar and returns the
// mapping from rule key to its debug description. Exactly one grammar is
// active per build; the invoker picks it by log file existence.
func ParseRuleKeys(r io.Reader, pattern *regexp.Regexp) (map[string]string, error) {
	ruleKeys := make(map[string]string)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		match := pattern.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		key := match[pattern.SubexpIndex("rule_key")]
		ruleKeys[key] = match[pattern.SubexpIndex("rule_key_debug")]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan rule key log: %w", err)
	}

	return ruleKeys, nil
}

// ParseBuildLog scans the structured build log and returns rule records
// bucketed by cache outcome (in log order) plus the rule name to rule key
// mapping. Every referenced rule key must resolve in ruleKeys; a miss is an
// ErrInconsistentLogs naming the rule and key.
func ParseBuildLog(r io.Reader, ruleKeys map[string]string) (map[models.CacheOutcome][]models.RuleRecord, map[string]models.RuleKey, error) {
	cacheResults := make(map[models.CacheOutcome][]models.RuleRecord)
	ruleKeyMap := make(map[string]models.RuleKey)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		match := buildResultLine.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}

		ruleName := match[buildResultLine.SubexpIndex("rule_name")]
		outcome := models.CacheOutcome(match[buildResultLine.SubexpIndex("cache_result")])
		ruleKey := match[buildResultLine.SubexpIndex("rule_key")]

		debug, ok := ruleKeys[ruleKey]
		if !ok {
			return nil, nil, fmt.Errorf("%w: rule %s references key %s missing from verbose output",
				ErrInconsistentLogs, ruleName, ruleKey)
		}

		cacheResults[outcome] = append(cacheResults[outcome], models.RuleRecord{
			RuleName:    ruleName,
			Outcome:     outcome,
			Fingerprint: ruleKey,
			Debug:       debug,
		})
		ruleKeyMap[ruleName] = models.RuleKey{Fingerprint: ruleKey, Debug: debug}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to scan build log: %w", err)
	}

	return cacheResults, ruleKeyMap, nil
}
