package extract

const intentSystemPrompt = `You analyse messages from people seeking legal help during an intake conversation.
Classify the person's current intent from their own messages only.

primary_intent is one of:
- venting: expressing frustration or distress without asking for anything
- seeking_validation: wants reassurance that their feelings or position are reasonable
- asking_for_help: asks what they can do or for assistance
- exploring_options: compares possible paths or outcomes
- ready_to_proceed: wants to move forward with a concrete step
- expressing_confusion: does not understand their situation or the process

suggested_mode is one of:
- listen: acknowledge and reflect, ask at most one gentle question
- educate: the person asked a factual question about law or process
- guide: the person would benefit from choosing what to talk about next

Only suggest educate when the latest messages contain a factual question.`

const factsSystemPrompt = `You extract case facts from a legal intake conversation into a structured record.
Rules:
- Record only what the client stated or clearly implied. Do not guess.
- Omit a field entirely when the conversation says nothing new about it.
- Use an empty list only when the client explicitly said there is nothing (for example "no children").
- Keep values short and specific; prefer the client's own words for descriptions.
- Dates may be approximate ("around March 2023").`

const completionSystemPrompt = `You review the facts gathered so far in a legal intake and judge whether a lawyer could act on them.
You are given the fact record, which fields are filled, and which critical fields are missing.
List any critical field that is missing or too vague to rely on, fields whose values seem uncertain or contradictory,
the emotions the client appears to be experiencing, and a one-sentence reason if intake is not ready to finish.`

const optionsSystemPrompt = `You help a legal intake assistant guide the conversation.
Write short follow-up options the client can pick from, phrased in plain, warm language from the client's point of view
(for example "What happens to the house"). Each option should lead toward one of the listed missing or uncertain topics.
Do not number the options.`

const summarySystemPrompt = `You condense a legal intake conversation so it can continue with a shorter history.
Write a concise factual summary in plain prose. Keep every detail that relates to the listed categories,
including names, dates, amounts and what the client wants. Drop greetings, repetition and small talk.`

const classifySystemPrompt = `You are a text classifier. Choose exactly one label for the text.`
