package composition

import (
	"fmt"
	"strconv"
	"strings"

	"composition-resolver/internal/pkg/common"
)

// buildResolvePrompt 組出要求模型回傳物品樹的 prompt
func buildResolvePrompt(kind Kind, req ResolveRequest, query, contextText string, identifiers []string, candidates []common.Candidate, enum []string) string {
	focus := "Describe the recipe of this food product: its ingredients and how they are combined."
	inputHint := "ingredients"
	if kind == KindNonFood {
		focus = "Decompose this manufactured product into a bill of materials: its components and materials."
		inputHint = "components or materials"
	}

	var params strings.Builder
	writeParam(&params, "title", req.Title)
	writeParam(&params, "brand", req.Brand)
	writeParam(&params, "category", req.Category)
	writeParam(&params, "type", req.Type)
	if req.Quantity > 0 {
		writeParam(&params, "declared quantity (g or ml)", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	}
	if len(identifiers) > 0 {
		writeParam(&params, "identifiers", strings.Join(identifiers, ", "))
	}

	if contextText == "" {
		contextText = "(none)"
	}
	candidateText := common.FormatCandidates(candidates)
	if candidateText == "" {
		candidateText = "(none)\n"
	}

	prompt := fmt.Sprintf(`%s
Product: %s
Parameters:
%s
Page context:
%s

Catalog matches:
%s
Requirements:
1. Use only information supported by the parameters, the page context and the catalog matches
2. List the %s in the order they are declared, most important first
3. "quantity" values are grams or milliliters; if only percentages are known, give the percentages
4. If the total quantity is unknown, set "quantity" to 0; never invent a total
5. "process.type" must be exactly one of: %s
6. "bio" is true only when the product is explicitly organic
7. Answer with a single JSON object and nothing else

Return JSON in this shape (example only, do not copy the values):
{"category":"category","name":"product name","bio":false,"quantity":0,"process":{"type":"%s","inputInstances":[{"instance":{"category":"category","name":"input name","bio":false,"quantity":0},"quantity":0}]}}`,
		focus,
		query,
		params.String(),
		contextText,
		candidateText,
		inputHint,
		strings.Join(enum, ", "),
		firstOr(enum, DefaultProcessType),
	)
	return strings.TrimSpace(prompt)
}

// buildExtractPrompt 組出從自由文字擷取物品與製程的 prompt
func buildExtractPrompt(text, contextText string, enum []string) string {
	if contextText == "" {
		contextText = "(none)"
	}
	prompt := fmt.Sprintf(`Read the description below and extract the product it describes.
Description:
%s

Attached context:
%s

Requirements:
1. "summary" is one or two sentences describing the product
2. "instance" is the product itself; "process" lists its inputs in declared order
3. "quantity" values are grams or milliliters; use 0 when unknown, never invent a total
4. "process.type" must be exactly one of: %s
5. Answer with a single JSON object and nothing else

Return JSON in this shape (example only, do not copy the values):
{"summary":"text","instance":{"category":"category","name":"product name","bio":false,"quantity":0},"process":{"type":"%s","inputInstances":[{"instance":{"category":"category","name":"input name","bio":false,"quantity":0},"quantity":0}]}}`,
		text,
		contextText,
		strings.Join(enum, ", "),
		firstOr(enum, DefaultProcessType),
	)
	return strings.TrimSpace(prompt)
}

func writeParam(sb *strings.Builder, key, value string) {
	if value = strings.TrimSpace(value); value == "" {
		return
	}
	sb.WriteString(fmt.Sprintf("- %s: %s\n", key, value))
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
