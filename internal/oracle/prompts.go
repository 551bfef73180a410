package oracle

import "fmt"

const qualitySystemPrompt = `You are an expert reviewer of long-form research reports.
Read the research question and the report, then grade the report on five dimensions.
Each score is an integer from 0 to 4.

1. Comprehensiveness: does the report cover the important aspects of the question?
2. Coherence: is the report logically organized, with sections that build on each other?
3. Clarity: is the writing precise and easy to follow?
4. Insightfulness: does the report integrate its sources into original analysis instead of stitching excerpts together?
5. Overall: how much do you like the report as a whole?

A satisfactory report deserves around 2 on each dimension. Do not give scores above 3 or below 1
without substantial reasoning.

Reply with a single JSON object and nothing else:
{
    "Reason": "<reasoning for the scores>",
    "Comprehensiveness_Score": <score>,
    "Coherence_Score": <score>,
    "Clarity_Score": <score>,
    "Insightfulness_Score": <score>,
    "Overall_Score": <score>
}`

const repetitionSystemPrompt = `You compare two passages taken from the same report and judge how much content they repeat.

Repetition means the passages express the same viewpoints or conclusions, reuse the same examples,
data or sources, or restate the same core information in different words.
Differences in wording alone, related topics with different content, and one passage extending
the other with new information are not repetition.

Judge only the information content. Do not judge whether it is correct.

Scores:
4 - no meaningful repetition
3 - minor repetition that does not hurt information density
2 - noticeable repetition of some points
1 - substantial repetition of the main points
0 - the passages say essentially the same thing

Reply with a single JSON object and nothing else:
{
    "score": <0-4>,
    "explanation": "<why, citing the repeated content>",
    "repetitions_found": ["<repeated content>", ...],
    "confidence": <0-100>
}`

const verifySystemPrompt = `You check whether a sentence from a report is supported by a web page.
Use only the page content below, not outside knowledge. Check every detail of the sentence
(dates, places, people, quantities) against the page.

is_factual:
 1 - the page states the sentence or it follows from the page by reasonable inference
 0 - the page is related but not enough to confirm or deny the sentence
-1 - the page does not mention it, or contradicts it

Reply with a single JSON object and nothing else:
{
    "is_factual": <-1, 0 or 1>,
    "sentence_support": "<the page sentences that support the statement>"
}`

func qualityUserPrompt(topic, report string) string {
	return fmt.Sprintf("Research question:\n%s\n\nReport:\n%s\n", topic, report)
}

func repetitionUserPrompt(passageA, passageB string) string {
	return fmt.Sprintf("Passage 1:\n%s\n\nPassage 2:\n%s\n", passageA, passageB)
}

func verifyUserPrompt(sentence, source string) string {
	return fmt.Sprintf("Web page content:\n%s\n\nSentence:\n%s\n", source, sentence)
}
