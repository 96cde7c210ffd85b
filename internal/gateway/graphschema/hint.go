package graphschema

import "fmt"

// RepairHint is the corrective instruction appended to a nudged attempt.
type RepairHint struct {
	Kind        DefectKind `json:"kind"`
	Instruction string     `json:"instruction"`
}

// HintFor derives the nudge for the defect that closed the previous attempt. A nil defect
// yields nil: backend failures are retried without a nudge.
func HintFor(defect *Defect, policy Policy) *RepairHint {
	if defect == nil {
		return nil
	}
	switch defect.Kind {
	case DefectQuality:
		minNodes, minEdges := policy.MinNodes, policy.MinEdges
		if minNodes < 1 {
			minNodes = 1
		}
		if minEdges < 1 {
			minEdges = 1
		}
		return &RepairHint{
			Kind: DefectQuality,
			Instruction: fmt.Sprintf(
				"The previous answer was too sparse (%s). Produce at least %d nodes and %d edges grounded in the context. "+
					"If evidence is weak, emit low-confidence candidates with a prop {\"key\":\"low_confidence\",\"value\":true}. Respond with JSON only.",
				defect.Reason, minNodes, minEdges),
		}
	default:
		return &RepairHint{
			Kind: DefectParse,
			Instruction: fmt.Sprintf(
				"The previous output was invalid: %s. Respond with valid JSON only, a single object with \"nodes\" and \"edges\" arrays; "+
					"every node needs id, type and props; every edge needs src, dst, type and props. No markdown, no prose.",
				defect.Reason),
		}
	}
}
