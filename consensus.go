package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
)

// Marker phrases for the heuristic strategy. Matched case-insensitively
// against message content.
var (
	affirmativeMarkers = []string{
		"i agree", "agreed", "exactly", "good point", "makes sense",
		"well said", "you're right", "that's right", "absolutely", "indeed",
		"fair point", "i concur",
	}

	disagreementMarkers = []string{
		"i disagree", "disagree", "however", "on the other hand",
		"on the contrary", "not convinced", "i don't think", "that's wrong",
		"i object", "but consider",
	}

	explicitAgreementPhrases = []string{
		"we all agree", "we agree", "we've reached", "we have reached",
		"common ground", "in agreement", "consensus",
	}
)

// Weights for the five heuristic factors. They sum to 5 so the score keeps
// its 0-5 scale and detected = (score/5) >= threshold.
const (
	weightShrinkingLength      = 0.5
	weightAffirmativeDensity   = 1.5
	weightDisagreementScarcity = 1.0
	weightConvergentEndings    = 1.5
	weightExplicitAgreement    = 0.5
)

// HeuristicConsensus scores the most recent window of messages across five
// weighted factors: shrinking message length, affirmative-language density,
// scarcity of disagreement markers, convergent terminal sentences, and
// explicit agreement phrasing. It makes no external calls, so it is safe to
// run after every round.
func HeuristicConsensus(messages []DiscussionMessage, threshold float64) ConsensusResult {
	window := recentWindow(messages, ConsensusWindow)
	result := ConsensusResult{Method: "heuristic", BasedOn: messageIDs(window)}
	if len(window) < 2 {
		return result
	}

	score := 0.0

	// Factor 1: messages getting shorter as positions settle
	half := len(window) / 2
	if averageLength(window[half:]) < averageLength(window[:half]) {
		score += weightShrinkingLength
	}

	// Factor 2: affirmative language showing up repeatedly
	if countMarkers(window, affirmativeMarkers) >= 2 {
		score += weightAffirmativeDensity
	}

	// Factor 3: disagreement all but gone
	if countMarkers(window, disagreementMarkers) <= 1 {
		score += weightDisagreementScarcity
	}

	// Factor 4: speakers closing on the same note
	if hasConvergentEndings(window) {
		score += weightConvergentEndings
	}

	// Factor 5: someone saying the quiet part out loud
	if countMarkers(window, explicitAgreementPhrases) >= 1 {
		score += weightExplicitAgreement
	}

	result.Confidence = score / 5.0
	result.Detected = result.Confidence >= threshold
	if result.Detected {
		result.Reason = "heuristic factors indicate convergence"
	}
	return result
}

// EmbeddingConsensus embeds each recent message and flags consensus when the
// mean pairwise cosine similarity meets the threshold. Requires at least 3
// messages; any embedding failure degrades to "not detected" and is never
// propagated to the caller.
func EmbeddingConsensus(ctx context.Context, messages []DiscussionMessage, threshold float64) ConsensusResult {
	window := recentWindow(messages, ConsensusWindow)
	result := ConsensusResult{Method: "embedding", BasedOn: messageIDs(window)}
	if len(window) < 3 {
		return result
	}

	vectors := make([][]float64, 0, len(window))
	for _, msg := range window {
		vector, ok := embeddingCache.Get(msg.Content)
		if !ok {
			var err error
			vector, err = EmbedText(ctx, msg.Content)
			if err != nil {
				log.Printf("Embedding consensus: embed failed: %v", err)
				return result
			}
			embeddingCache.Set(msg.Content, vector)
		}
		vectors = append(vectors, vector)
	}

	var sum float64
	var pairs int
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			sum += cosineSimilarity(vectors[i], vectors[j])
			pairs++
		}
	}
	if pairs == 0 {
		return result
	}

	mean := sum / float64(pairs)
	result.Confidence = clamp01(mean)
	result.Detected = mean >= threshold
	if result.Detected {
		result.Reason = fmt.Sprintf("mean pairwise similarity %.2f", mean)
	}
	return result
}

// judgeVerdict is the strict structure the judge model must return.
type judgeVerdict struct {
	Consensus  bool    `json:"consensus"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// JudgeConsensus asks a lightweight model whether the recent transcript shows
// consensus. A failed call or malformed verdict is "not detected" with
// confidence 0 - the judge never fails the discussion.
func JudgeConsensus(ctx context.Context, messages []DiscussionMessage) ConsensusResult {
	window := recentWindow(messages, ConsensusWindow)
	result := ConsensusResult{Method: "judge", BasedOn: messageIDs(window)}
	if len(window) == 0 {
		return result
	}

	var transcript strings.Builder
	for _, msg := range window {
		transcript.WriteString(fmt.Sprintf("[%s]: %s\n", msg.SpeakerName, msg.Content))
	}

	judgePrompt := fmt.Sprintf(`You are observing a multi-participant discussion. Decide whether the participants have reached consensus (converged on compatible positions).

Recent transcript:
%s

Respond with ONLY a JSON object, no other text, in exactly this form:
{"consensus": true or false, "confidence": a number between 0 and 1, "reason": "one short sentence"}`, transcript.String())

	messages2 := []OpenRouterMessage{
		{Role: "user", Content: judgePrompt},
	}

	response, err := QueryModel(ctx, JudgeModel, messages2, "", JudgeTimeout)
	if err != nil {
		log.Printf("Judge consensus: query failed: %v", err)
		return result
	}

	raw := extractJSONObject(response.Content)
	if raw == "" {
		log.Printf("Judge consensus: no JSON object in response")
		return result
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		log.Printf("Judge consensus: malformed verdict: %v", err)
		return result
	}

	result.Detected = verdict.Consensus
	result.Confidence = clamp01(verdict.Confidence)
	result.Reason = verdict.Reason
	return result
}

// EvaluateConsensus combines strategies according to mode. "heuristic" (the
// default) returns the heuristic result alone - zero extra latency or cost per
// round. "vote" runs all three strategies and combines by majority vote on
// detected and mean confidence; the based-on set is the union across
// strategies.
func EvaluateConsensus(ctx context.Context, messages []DiscussionMessage, threshold float64, mode string) ConsensusResult {
	if mode != "vote" {
		return HeuristicConsensus(messages, threshold)
	}

	results := []ConsensusResult{
		HeuristicConsensus(messages, threshold),
		EmbeddingConsensus(ctx, messages, threshold),
		JudgeConsensus(ctx, messages),
	}

	detectedVotes := 0
	confidenceSum := 0.0
	basedOn := make(map[string]bool)
	var reasons []string
	for _, r := range results {
		if r.Detected {
			detectedVotes++
			if r.Reason != "" {
				reasons = append(reasons, r.Method+": "+r.Reason)
			}
		}
		confidenceSum += r.Confidence
		for _, id := range r.BasedOn {
			basedOn[id] = true
		}
	}

	combined := ConsensusResult{
		Method:     "vote",
		Detected:   detectedVotes*2 > len(results),
		Confidence: confidenceSum / float64(len(results)),
		Reason:     strings.Join(reasons, "; "),
	}
	for id := range basedOn {
		combined.BasedOn = append(combined.BasedOn, id)
	}
	return combined
}

// recentWindow returns the most recent limit messages.
func recentWindow(messages []DiscussionMessage, limit int) []DiscussionMessage {
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

func messageIDs(messages []DiscussionMessage) []string {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	return ids
}

func averageLength(messages []DiscussionMessage) float64 {
	if len(messages) == 0 {
		return 0
	}
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	return float64(total) / float64(len(messages))
}

// countMarkers counts marker occurrences across the window, at most one per
// marker per message so a single gushing message can't dominate.
func countMarkers(messages []DiscussionMessage, markers []string) int {
	count := 0
	for _, msg := range messages {
		lower := strings.ToLower(msg.Content)
		for _, marker := range markers {
			if strings.Contains(lower, marker) {
				count++
			}
		}
	}
	return count
}

// hasConvergentEndings reports whether any two of the last three messages end
// on substantially overlapping terminal sentences.
func hasConvergentEndings(messages []DiscussionMessage) bool {
	tail := recentWindow(messages, 3)
	if len(tail) < 2 {
		return false
	}

	endings := make([]map[string]bool, 0, len(tail))
	for _, msg := range tail {
		endings = append(endings, wordSet(lastSentence(msg.Content)))
	}

	for i := 0; i < len(endings); i++ {
		for j := i + 1; j < len(endings); j++ {
			if jaccard(endings[i], endings[j]) >= 0.5 {
				return true
			}
		}
	}
	return false
}

// lastSentence returns the final sentence of a message, best effort.
func lastSentence(content string) string {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimRight(trimmed, ".!?")
	cut := strings.LastIndexAny(trimmed, ".!?")
	if cut >= 0 {
		trimmed = trimmed[cut+1:]
	}
	return strings.TrimSpace(trimmed)
}

func wordSet(sentence string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(sentence)) {
		word = strings.Trim(word, ".,;:!?\"'")
		if len(word) > 2 {
			set[word] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if b[word] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// extractJSONObject pulls the first balanced top-level JSON object out of a
// model response, tolerating prose or code fences around it.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
