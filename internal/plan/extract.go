package plan

import (
	"encoding/json"
	"regexp"
	"strings"
)

// --- Extraction ---
//
// Two strategies, tried in order:
//  1. A fenced code block containing {"phases": [{"id", "title"}, ...]}
//     is used verbatim.
//  2. Heading lines of the form "Phase N: Title" inside the document.
//
// If both fail, a single synthetic phase is returned. Extraction never
// returns an empty list and never fails on malformed input.

// phasesPayload is the machine-readable plan structure inside a fenced block.
type phasesPayload struct {
	Phases []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"phases"`
}

// headingRe matches "### Phase 2: Title" style lines. The heading marker
// is optional so plain "Phase 2: Title" lines count too.
var headingRe = regexp.MustCompile(`^#{0,6}\s*Phase\s+(\d+)\s*:\s*(.+?)\s*$`)

// ExtractPlanPhases parses a planning document into an ordered list of
// plan phases, every stage initialized to pending.
func ExtractPlanPhases(doc string) []Phase {
	if phases := fromFencedBlock(doc); len(phases) > 0 {
		return phases
	}
	if phases := fromHeadings(doc); len(phases) > 0 {
		return phases
	}
	return []Phase{SyntheticPhase()}
}

// fromFencedBlock scans every fenced code block for a phases payload and
// uses the first one that parses with at least one phase.
func fromFencedBlock(doc string) []Phase {
	for _, block := range fencedBlocks(doc) {
		var payload phasesPayload
		if err := json.Unmarshal([]byte(block), &payload); err != nil {
			continue
		}
		if len(payload.Phases) == 0 {
			continue
		}
		phases := make([]Phase, 0, len(payload.Phases))
		for i, p := range payload.Phases {
			id := strings.TrimSpace(p.ID)
			if id == "" {
				id = numberedID(i + 1)
			}
			title := strings.TrimSpace(p.Title)
			if title == "" {
				title = id
			}
			phases = append(phases, NewPhase(id, title))
		}
		return phases
	}
	return nil
}

// fencedBlocks returns the contents of every ``` fence in the document.
// The info string (e.g. "json") is ignored.
func fencedBlocks(doc string) []string {
	var blocks []string
	lines := strings.Split(doc, "\n")
	var inside bool
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inside {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			inside = !inside
			continue
		}
		if inside {
			current = append(current, line)
		}
	}
	return blocks
}

// fromHeadings parses successive "Phase N: Title" lines into an ordered
// list. Ids are assigned by order of appearance, not by the number in
// the heading, so a renumbered document still yields a consistent list.
func fromHeadings(doc string) []Phase {
	var phases []Phase
	for _, line := range strings.Split(doc, "\n") {
		m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		title := strings.TrimSpace(strings.Trim(m[2], "*_`"))
		if title == "" {
			continue
		}
		phases = append(phases, NewPhase(numberedID(len(phases)+1), title))
	}
	return phases
}
