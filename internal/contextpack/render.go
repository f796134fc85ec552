package contextpack

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/council/internal/model"
)

// Render flattens a Context Pack into the plain-text block Bundle Gen's
// prompt builder appends after "Context for this game:" (internal/bundle's
// buildDraftPrompt). Kept separate from Assembler.Build so the pack itself
// stays structured data — storage and the provenance mirror want the struct,
// only the generator prompt wants text.
func Render(pack model.ContextPack) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Persona: %s\n", pack.Persona)
	if pack.Degraded {
		b.WriteString("(memory retrieval degraded — fewer candidates than usual)\n")
	}
	fmt.Fprintf(&b, "Recalled memories (%d):\n", len(pack.Memories))
	for _, rm := range pack.Memories {
		fmt.Fprintf(&b, "- [%s, age %.0fd, sim %.2f] %s\n", rm.Memory.Type, rm.AgeDays, rm.Similarity, rm.Memory.Content)
	}
	if len(pack.LiveBriefs) > 0 {
		b.WriteString("Live briefs:\n")
		for _, brief := range pack.LiveBriefs {
			fmt.Fprintf(&b, "- %s\n", brief)
		}
	}
	fmt.Fprintf(&b, "Risk profile: %s, stake cap: %.2f\n", pack.Guardrails.RiskProfile, pack.Guardrails.StakeCap)
	return b.String()
}
