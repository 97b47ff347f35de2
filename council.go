package main

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// LanguageMatchInstruction is appended to every council system prompt so that
// models answer in the language the user wrote in.
const LanguageMatchInstruction = "Always respond in the same language as the user's input."

// withLanguageInstruction appends the language-matching instruction to a
// caller-supplied system prompt without replacing it.
func withLanguageInstruction(systemPrompt string) string {
	if systemPrompt == "" {
		return LanguageMatchInstruction
	}
	return systemPrompt + "\n\n" + LanguageMatchInstruction
}

// Stage1CollectResponses collects individual responses from all council participants.
// This is the first stage of the council process where each model independently
// answers the user's question. Participants whose invocation fails are silently
// dropped; partial success is the expected case. Returns results in participant
// registration order.
func Stage1CollectResponses(ctx context.Context, userQuery string, participants []ParticipantConfig) ([]Stage1Response, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("no council participants configured")
	}

	// Create messages slice with user query
	messages := []OpenRouterMessage{
		{Role: "user", Content: userQuery},
	}

	// Augment each participant's system prompt with the language instruction
	stage1Participants := make([]ParticipantConfig, 0, len(participants))
	for _, p := range participants {
		stage1Participants = append(stage1Participants, ParticipantConfig{
			Model:        p.Model,
			SystemPrompt: withLanguageInstruction(p.SystemPrompt),
		})
	}

	// Query all models in parallel
	responses, err := QueryModelsParallel(ctx, stage1Participants, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	// Format results in registration order - only include successful responses
	var stage1Results []Stage1Response
	for _, p := range participants {
		if response := responses[p.Model]; response != nil {
			stage1Results = append(stage1Results, Stage1Response{
				Model:    p.Model,
				Response: response.Content,
			})
		}
	}

	return stage1Results, nil
}

// Stage2CollectRankings collects rankings from each participant on anonymized responses.
// This is the second stage where models evaluate each other's responses without
// knowing which model produced which response. Labels are assigned in Stage 1
// result order. Returns rankings, a label-to-model mapping for de-anonymization,
// and any error encountered.
func Stage2CollectRankings(ctx context.Context, userQuery string, stage1Results []Stage1Response, participants []ParticipantConfig) ([]Stage2Ranking, map[string]string, error) {
	if len(participants) == 0 {
		return nil, nil, fmt.Errorf("no council participants configured")
	}

	// Create anonymized labels (A, B, C...) in collection order
	labelToModel := make(map[string]string)
	var responsesText strings.Builder

	for i, result := range stage1Results {
		label := string(rune('A' + i))
		labelKey := fmt.Sprintf("Response %s", label)
		labelToModel[labelKey] = result.Model

		responsesText.WriteString(fmt.Sprintf("Response %s:\n%s\n\n", label, result.Response))
	}

	// Build ranking prompt
	rankingPrompt := fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, userQuery, responsesText.String())

	// Create messages
	messages := []OpenRouterMessage{
		{Role: "user", Content: rankingPrompt},
	}

	// Rankers keep their caller-supplied prompts plus the language instruction
	rankers := make([]ParticipantConfig, 0, len(participants))
	for _, p := range participants {
		rankers = append(rankers, ParticipantConfig{
			Model:        p.Model,
			SystemPrompt: withLanguageInstruction(p.SystemPrompt),
		})
	}

	// Query all models in parallel
	responses, err := QueryModelsParallel(ctx, rankers, messages)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query models for rankings: %w", err)
	}

	// Format results in registration order
	var stage2Results []Stage2Ranking
	for _, p := range participants {
		if response := responses[p.Model]; response != nil {
			fullText := response.Content
			parsed := filterKnownLabels(ParseRankingFromText(fullText), labelToModel)
			stage2Results = append(stage2Results, Stage2Ranking{
				Model:         p.Model,
				Ranking:       fullText,
				ParsedRanking: parsed,
			})
		}
	}

	return stage2Results, labelToModel, nil
}

// Stage3SynthesizeFinal synthesizes the final response using the chairman model.
// This is the final stage where the chairman reviews all responses and rankings
// to produce a comprehensive answer. The chairman may be overridden per call;
// empty means the configured default. Invocation failure yields a synthetic
// error result rather than an error, because callers always expect exactly one
// Stage-3 result.
func Stage3SynthesizeFinal(ctx context.Context, userQuery string, stage1Results []Stage1Response, stage2Results []Stage2Ranking, chairman string) Stage3Response {
	if chairman == "" {
		chairman = ChairmanModel
	}

	// Build comprehensive context with all stage1 results
	var stage1Text strings.Builder
	for _, result := range stage1Results {
		stage1Text.WriteString(fmt.Sprintf("Model: %s\nResponse: %s\n\n", result.Model, result.Response))
	}

	// Build stage2 rankings text
	var stage2Text strings.Builder
	for _, result := range stage2Results {
		stage2Text.WriteString(fmt.Sprintf("Model: %s\nRanking: %s\n\n", result.Model, result.Ranking))
	}

	// Create chairman prompt
	chairmanPrompt := fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings:
%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`, userQuery, stage1Text.String(), stage2Text.String())

	// Create messages
	messages := []OpenRouterMessage{
		{Role: "user", Content: chairmanPrompt},
	}

	// Query chairman model
	response, err := QueryModel(ctx, chairman, messages, LanguageMatchInstruction, ModelQueryTimeout)
	if err != nil {
		return Stage3Response{
			Model:    chairman,
			Response: fmt.Sprintf("The chairman was unable to synthesize a final answer: %v", err),
			IsError:  true,
		}
	}

	return Stage3Response{
		Model:    chairman,
		Response: response.Content,
	}
}

// ParseRankingFromText extracts the ranking from a model's response text.
// Looks for a "FINAL RANKING:" section and parses numbered responses (e.g., "1. Response A").
// Falls back to extracting any "Response X" patterns found in the text.
func ParseRankingFromText(rankingText string) []string {
	// Look for "FINAL RANKING:" section
	if strings.Contains(rankingText, "FINAL RANKING:") {
		parts := strings.Split(rankingText, "FINAL RANKING:")
		if len(parts) >= 2 {
			rankingSection := parts[1]

			// Try to extract numbered list format (e.g., "1. Response A")
			numberedPattern := regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
			numberedMatches := numberedPattern.FindAllString(rankingSection, -1)
			if len(numberedMatches) > 0 {
				// Extract just the "Response X" part
				responsePattern := regexp.MustCompile(`Response [A-Z]`)
				var results []string
				for _, match := range numberedMatches {
					if resp := responsePattern.FindString(match); resp != "" {
						results = append(results, resp)
					}
				}
				return results
			}

			// Fallback: Extract all "Response X" patterns in order
			responsePattern := regexp.MustCompile(`Response [A-Z]`)
			matches := responsePattern.FindAllString(rankingSection, -1)
			if len(matches) > 0 {
				return matches
			}
		}
	}

	// Fallback: try to find any "Response X" patterns in order
	responsePattern := regexp.MustCompile(`Response [A-Z]`)
	matches := responsePattern.FindAllString(rankingText, -1)
	return matches
}

// filterKnownLabels drops labels that were never assigned in this run and
// deduplicates repeats, keeping first occurrences. A parsed ranking is always a
// sequence over assigned labels, possibly a strict prefix or subset.
func filterKnownLabels(parsed []string, labelToModel map[string]string) []string {
	seen := make(map[string]bool, len(parsed))
	result := make([]string, 0, len(parsed))
	for _, label := range parsed {
		if _, known := labelToModel[label]; !known {
			continue
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		result = append(result, label)
	}
	return result
}

// CalculateAggregateRankings computes aggregate rankings across all models.
// Each label at 0-based index i in a parsed ranking contributes position i+1
// to its model. Models with zero contributions are excluded. The result is
// deterministic: models are visited in label-assignment order and sorted
// stably by average rank, so ties keep registration order.
func CalculateAggregateRankings(stage2Results []Stage2Ranking, labelToModel map[string]string) []AggregateRanking {
	// Track positions for each model
	modelPositions := make(map[string][]int)

	for _, ranking := range stage2Results {
		for position, label := range ranking.ParsedRanking {
			if modelName, ok := labelToModel[label]; ok {
				modelPositions[modelName] = append(modelPositions[modelName], position+1) // position+1 because 0-indexed
			}
		}
	}

	// Visit models in label-assignment order ("Response A", "Response B", ...)
	var aggregate []AggregateRanking
	for i := 0; i < len(labelToModel); i++ {
		label := fmt.Sprintf("Response %s", string(rune('A'+i)))
		model, ok := labelToModel[label]
		if !ok {
			continue
		}

		positions := modelPositions[model]
		if len(positions) == 0 {
			continue
		}

		sum := 0
		for _, pos := range positions {
			sum += pos
		}
		avgRank := float64(sum) / float64(len(positions))

		aggregate = append(aggregate, AggregateRanking{
			Model:         model,
			AverageRank:   avgRank,
			RankingsCount: len(positions),
		})
	}

	// Sort by average rank (lower is better), stable so ties keep input order
	sort.SliceStable(aggregate, func(i, j int) bool {
		return aggregate[i].AverageRank < aggregate[j].AverageRank
	})

	return aggregate
}

// GenerateConversationTitle generates a short title for a conversation.
// Uses a fast model to create a 3-5 word summary of the user's query.
// Returns the generated title or an error if generation fails.
func GenerateConversationTitle(ctx context.Context, userQuery string) (string, error) {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	messages := []OpenRouterMessage{
		{Role: "user", Content: titlePrompt},
	}

	response, err := QueryModel(ctx, TitleModel, messages, "", TitleGenTimeout)
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	title := strings.TrimSpace(response.Content)

	// Clean up the title - remove quotes
	title = strings.Trim(title, "\"'")

	// Truncate if too long
	if len(title) > 50 {
		title = title[:47] + "..."
	}

	return title, nil
}

// RunFullCouncil runs the complete 3-stage council process.
// Orchestrates all three stages: parallel model queries, anonymized peer review,
// and chairman synthesis. Individual model failures never fail the pipeline;
// when every Stage-1 invocation fails, the result carries a synthetic Stage-3
// error response so callers always receive a well-formed (if degraded) answer.
// The only hard error is an empty participant list, rejected before dispatch.
func RunFullCouncil(ctx context.Context, userQuery string, participants []ParticipantConfig, chairman string) ([]Stage1Response, []Stage2Ranking, Stage3Response, Metadata, error) {
	if len(participants) == 0 {
		return nil, nil, Stage3Response{}, Metadata{}, fmt.Errorf("no council participants configured")
	}

	// Stage 1: Collect responses
	stage1Results, err := Stage1CollectResponses(ctx, userQuery, participants)
	if err != nil {
		return nil, nil, Stage3Response{}, Metadata{}, fmt.Errorf("stage 1 failed: %w", err)
	}

	// Total failure degrades to a synthetic chairman result, never an error
	if len(stage1Results) == 0 {
		if chairman == "" {
			chairman = ChairmanModel
		}
		stage3 := Stage3Response{
			Model:    chairman,
			Response: "All council models failed to respond. Please try again.",
			IsError:  true,
		}
		return []Stage1Response{}, []Stage2Ranking{}, stage3, Metadata{LabelToModel: map[string]string{}}, nil
	}

	// Stage 2: Collect rankings
	stage2Results, labelToModel, err := Stage2CollectRankings(ctx, userQuery, stage1Results, participants)
	if err != nil {
		return nil, nil, Stage3Response{}, Metadata{}, fmt.Errorf("stage 2 failed: %w", err)
	}

	// Calculate aggregate rankings
	aggregateRankings := CalculateAggregateRankings(stage2Results, labelToModel)

	// Stage 3: Synthesize final answer
	stage3Result := Stage3SynthesizeFinal(ctx, userQuery, stage1Results, stage2Results, chairman)

	// Build metadata
	metadata := Metadata{
		LabelToModel:      labelToModel,
		AggregateRankings: aggregateRankings,
	}

	return stage1Results, stage2Results, stage3Result, metadata, nil
}
