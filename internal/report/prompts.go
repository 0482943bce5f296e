package report

const skeletonSystemPrompt = `You design the structure of a legal intake report from a conversation between a client and an intake assistant, together with the facts already extracted from it. The structure must be clear and must not invite the same fact to be written twice.

Work through these steps:

1. Sort the information in the conversation into themes: matter identification (type, parties, jurisdiction), the factual timeline, legal status (orders, proceedings, representation), financial context, risk factors, evidence and documents, and the client's objectives.

2. Choose distinct, non-overlapping sections. The usual intake structure is:
- Matter Summary (a brief overview only)
- Parties Involved
- Chronology of Events
- Current Legal Position
- Financial Overview
- Risk Assessment
- Available Evidence
- Client Instructions
- Recommended Next Steps
Adapt these to the kind of matter (family law, tenancy, employment, estates and so on). Drop a section only when the conversation gives it nothing at all.

3. Write specific headings that describe legal categories rather than the order of the conversation, for example "Property and Assets" rather than "Financial Information".

4. Give each section sub-headings that split it into distinct categories. Every fact should have exactly one natural home: dates and events belong to the chronology, values and income to the financial overview, safety concerns to the risk assessment, and what the client wants to the client instructions.

5. Order the sections so the report moves from identifying the matter, through the facts and risks, to recommendations.

Return the sections in the order they should appear in the report.`

const sectionSystemPrompt = `You draft the "%[1]s" section of a legal intake report. You are given the conversation between the client and the intake assistant, the facts extracted from it, and the sections of the report already written.

Scope and structure:
- Start with the heading "## %[1]s".
- Use only these sub-headings, in this order, as "###" headings: %[2]s
- Do not add headings or move content between sub-headings.

Fact allocation:
- Each fact appears in exactly one section of the whole report.
- Do not repeat or paraphrase anything already written below. Where earlier content is relevant, refer to it briefly instead, for example "As detailed in Financial Overview".
- Do not restate dates, amounts, allegations or events that are already recorded.

Content:
- Plain, professional language suitable for a legal intake file, in full sentences.
- Report what the client said objectively, as client-reported facts rather than legal conclusions.
- Distinguish confirmed information from the client's assertions.
- Flag missing or unclear information as a gap.
- Use only information stated in the conversation or the fact record. Do not infer.

Output markdown only, with no preamble.

Report written so far:
%[3]s`

const noPriorSections = "(nothing yet; this is the first section)"
