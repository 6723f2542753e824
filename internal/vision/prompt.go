package vision

// analysisPrompt instructs every provider to return the triage verdict as a
// bare JSON object in the canonical schema.
const analysisPrompt = `You help sort personal photos. Analyze the image and return a structured JSON response.

Return a valid JSON object with exactly this structure:

{
  "decision": "keep" | "delete" | "unsure",
  "confidence_keep": 0.0-1.0,
  "confidence_delete": 0.0-1.0,
  "confidence_unsure": 0.0-1.0,
  "primary_category": "personal" | "blurry" | "meme" | "screenshot" | "document" | "non_personal",
  "reason": "Brief explanation of the decision (max 100 words)"
}

Scoring rules:
- The three confidence values should sum to roughly 1.0.
- Lean "keep" for personal photos, visible faces, or meaningful content.
- Lean "delete" for blurry shots, memes, screenshots, documents, and other non-personal material.
- Use "unsure" when quality or content is ambiguous.
- primary_category names the single most fitting category.

Example response:
{"decision": "keep", "confidence_keep": 0.95, "confidence_delete": 0.05, "confidence_unsure": 0.0, "primary_category": "personal", "reason": "Clear family gathering with visible faces"}

IMPORTANT: Return ONLY a valid JSON object. No extra text or markdown!`
