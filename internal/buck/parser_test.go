package buck

import (
	"errors"
	"strings"
	"testing"

	"buckperf/internal/models"
)

func TestParseRuleKeysStdoutPattern(t *testing.T) {
	input := strings.Join([]string{
		"BUILDING //app:bin",
		"INFO: RuleKey aa11bb22=string(\"//app:bin\"):path(app/main.c):",
		"INFO: RuleKey ccdd3344=string(\"//lib:core\"):path(lib/core.c):",
		"some unrelated noise",
		"WARN: RuleKey lines require the INFO prefix ee55=nope",
	}, "\n")

	ruleKeys, err := ParseRuleKeys(strings.NewReader(input), RuleKeyStdoutPattern)
	if err != nil {
		t.Fatalf("ParseRuleKeys: %v", err)
	}

	if len(ruleKeys) != 2 {
		t.Fatalf("expected 2 rule keys, got %d: %v", len(ruleKeys), ruleKeys)
	}
	if got := ruleKeys["aa11bb22"]; got != `string("//app:bin"):path(app/main.c):` {
		t.Errorf("unexpected debug for aa11bb22: %q", got)
	}
}

func TestParseRuleKeysVerbosePattern(t *testing.T) {
	tests := []struct {
		name string
		line string
		key  string
	}{
		{
			name: "dollar builder with command id",
			line: "2016-01-01 12:00:00 [FINER][command:779e5b06-8a1e-44c8-9e4a-59e7a0e9f5a5][tid:12][com.facebook.buck.rules.RuleKey$Builder] RuleKey aa11bb22=debug-one",
			key:  "aa11bb22",
		},
		{
			name: "dot builder without command id",
			line: "[FINER][tid:1][com.facebook.buck.rules.RuleKey.Builder] RuleKey ccdd3344=debug-two",
			key:  "ccdd3344",
		},
		{
			name: "plain builder",
			line: "[FINE LOG][tid:99][com.facebook.buck.rules.RuleKeyBuilder] RuleKey ee556677=debug-three",
			key:  "ee556677",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ruleKeys, err := ParseRuleKeys(strings.NewReader(tt.line), RuleKeyVerbosePattern)
			if err != nil {
				t.Fatalf("ParseRuleKeys: %v", err)
			}
			if len(ruleKeys) != 1 {
				t.Fatalf("expected 1 rule key, got %v", ruleKeys)
			}
			if _, ok := ruleKeys[tt.key]; !ok {
				t.Errorf("key %s not extracted: %v", tt.key, ruleKeys)
			}
		})
	}
}

func TestParseRuleKeysLongDebugLine(t *testing.T) {
	debug := strings.Repeat("path(some/long/input.c):", 20000)
	input := "INFO: RuleKey aa11=" + debug

	ruleKeys, err := ParseRuleKeys(strings.NewReader(input), RuleKeyStdoutPattern)
	if err != nil {
		t.Fatalf("ParseRuleKeys: %v", err)
	}
	if ruleKeys["aa11"] != debug {
		t.Error("long debug line was truncated or dropped")
	}
}

func TestParseBuildLogBucketsRecords(t *testing.T) {
	ruleKeys := map[string]string{
		"aa11": "debug-a",
		"bb22": "debug-b",
		"cc33": "debug-c",
	}
	input := strings.Join([]string{
		"unrelated header line",
		"2016-01-01 12:00:01 BuildRuleFinished(//app:bin): SUCCESS DIR_HIT CACHED aa11",
		"2016-01-01 12:00:02 BuildRuleFinished(//lib:core): SUCCESS DIR_HIT CACHED bb22",
		"2016-01-01 12:00:03 BuildRuleFinished(//lib:extra#flavor): SUCCESS MISS BUILT_LOCALLY cc33",
	}, "\n")

	cacheResults, ruleKeyMap, err := ParseBuildLog(strings.NewReader(input), ruleKeys)
	if err != nil {
		t.Fatalf("ParseBuildLog: %v", err)
	}

	if len(ruleKeyMap) != 3 {
		t.Fatalf("expected 3 rule map entries, got %d", len(ruleKeyMap))
	}
	if got := len(cacheResults[models.CacheOutcomeDirHit]); got != 2 {
		t.Errorf("expected 2 DIR_HIT records, got %d", got)
	}
	if got := len(cacheResults[models.CacheOutcomeMiss]); got != 1 {
		t.Errorf("expected 1 MISS record, got %d", got)
	}

	hits := cacheResults[models.CacheOutcomeDirHit]
	if hits[0].RuleName != "//app:bin" || hits[1].RuleName != "//lib:core" {
		t.Errorf("DIR_HIT records out of log order: %+v", hits)
	}

	miss := cacheResults[models.CacheOutcomeMiss][0]
	if miss.Fingerprint != "cc33" || miss.Debug != "debug-c" {
		t.Errorf("unexpected MISS record: %+v", miss)
	}
	if ruleKeyMap["//app:bin"] != (models.RuleKey{Fingerprint: "aa11", Debug: "debug-a"}) {
		t.Errorf("unexpected rule map entry: %+v", ruleKeyMap["//app:bin"])
	}
}

func TestParseBuildLogLastWriteWins(t *testing.T) {
	ruleKeys := map[string]string{"aa11": "debug-old", "bb22": "debug-new"}
	input := strings.Join([]string{
		"BuildRuleFinished(//app:bin): SUCCESS MISS BUILT_LOCALLY aa11",
		"BuildRuleFinished(//app:bin): SUCCESS DIR_HIT CACHED bb22",
	}, "\n")

	cacheResults, ruleKeyMap, err := ParseBuildLog(strings.NewReader(input), ruleKeys)
	if err != nil {
		t.Fatalf("ParseBuildLog: %v", err)
	}

	if len(ruleKeyMap) != 1 {
		t.Fatalf("expected 1 rule map entry, got %d", len(ruleKeyMap))
	}
	if ruleKeyMap["//app:bin"].Fingerprint != "bb22" {
		t.Errorf("expected last write to win, got %+v", ruleKeyMap["//app:bin"])
	}
	// Both records are still bucketed.
	if len(cacheResults[models.CacheOutcomeMiss]) != 1 || len(cacheResults[models.CacheOutcomeDirHit]) != 1 {
		t.Errorf("unexpected buckets: %+v", cacheResults)
	}
}

func TestParseBuildLogUnknownKeyIsFatal(t *testing.T) {
	input := "BuildRuleFinished(//app:bin): SUCCESS DIR_HIT CACHED dead"

	_, _, err := ParseBuildLog(strings.NewReader(input), map[string]string{})
	if !errors.Is(err, ErrInconsistentLogs) {
		t.Fatalf("expected ErrInconsistentLogs, got %v", err)
	}
	if !strings.Contains(err.Error(), "//app:bin") || !strings.Contains(err.Error(), "dead") {
		t.Errorf("error does not name the rule and key: %v", err)
	}
}

func TestParseBuildLogOpaqueOutcomeTags(t *testing.T) {
	// The tag vocabulary is buck's; unknown tags must be carried, not dropped.
	ruleKeys := map[string]string{"aa11": "debug-a"}
	input := "BuildRuleFinished(//app:bin): SUCCESS SOME_FUTURE_TAG CACHED aa11"

	cacheResults, _, err := ParseBuildLog(strings.NewReader(input), ruleKeys)
	if err != nil {
		t.Fatalf("ParseBuildLog: %v", err)
	}
	if len(cacheResults[models.CacheOutcome("SOME_FUTURE_TAG")]) != 1 {
		t.Errorf("unknown outcome tag dropped: %+v", cacheResults)
	}
}
