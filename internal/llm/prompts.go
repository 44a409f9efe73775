package llm

const extractPrompt = `You are a concept extraction system for qualitative interviews. Read the respondent's answer and extract the distinct concepts they actually expressed, plus the relationships they stated between them.

Allowed node types: %s
Concepts already in the interview: %s

For each concept:
- text: a short noun phrase in the respondent's own words
- node_type: one of the allowed node types

For each relationship:
- source_text: text of the concept that leads to the other
- target_text: text of the concept it leads to
- relation_type: "leads_to" unless another verb is clearly stated

Reuse the wording of existing concepts when the respondent refers to them.

Respond ONLY with JSON. No markdown, no explanation. Example:
{"concepts":[{"text":"low sugar","node_type":"attribute"},{"text":"stay healthy","node_type":"functional_consequence"}],"relationships":[{"source_text":"low sugar","target_text":"stay healthy","relation_type":"leads_to"}]}

If nothing can be extracted, respond with {"concepts":[],"relationships":[]}

Answer:
%s`

const slotProposalPrompt = `You group interview concepts into reusable canonical categories.

Existing category names (reuse them when a concept fits): %s

Concepts grouped by node type, one per line as "- <id>: <label>":
%s
Group concepts of the same node type that express the same underlying idea. Every group needs:
- slot_name: a short snake_case category name
- description: one sentence describing the category
- member_node_ids: the ids of the concepts in the group

Respond ONLY with a JSON array. No markdown, no explanation. Example:
[{"slot_name":"sugar_reduction","description":"Wanting less sugar in food and drinks","member_node_ids":["<id>"]}]

If no grouping is possible, respond with an empty array: []`

const rubricPrompt = `Rate the respondent's answer to the interviewer's question.

Question: %s
Answer: %s

Return these fields:
- response_depth: one of "surface", "shallow", "moderate", "deep"
- specificity: 0.0 to 1.0, how concrete and specific the answer is
- certainty: 0.0 to 1.0, how sure the respondent sounds
- engagement: 0.0 to 1.0, how invested the respondent seems
- valence: 0.0 (negative) to 1.0 (positive) emotional tone
- relevance: 0.0 to 1.0, how well the answer addresses the question
- hedging: true if the respondent qualifies or softens their statements

Respond ONLY with a JSON object. No markdown, no explanation. Example:
{"response_depth":"moderate","specificity":0.6,"certainty":0.7,"engagement":0.8,"valence":0.5,"relevance":0.9,"hedging":false}`

const questionPrompt = `You are a skilled qualitative interviewer using laddering.

Interview topic: %s
Questioning strategy: %s (%s)
Concept to focus on: %s

Recent exchanges:
%s
Write the next interviewer question following the strategy. Ask exactly one open question, in plain conversational language, without preamble.

Respond with ONLY the question text.`
