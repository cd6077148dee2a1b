package macro

import "fmt"

// Block is a matched excel-row-start / excel-row-end pair. The steps strictly
// between StartIndex and EndIndex form the row body executed once per
// selected data row.
type Block struct {
	PairID     string
	StartIndex int
	EndIndex   int

	RepeatMode       RepeatMode
	RepeatCount      int
	StartRow         int
	EndRow           int
	CompletionStatus string
}

// Body returns the steps strictly between the markers.
func (b *Block) Body(steps []Step) []Step {
	return steps[b.StartIndex+1 : b.EndIndex]
}

// FindBlock scans the step list for an excel workflow block. Returns nil when
// the macro has no row markers (standalone macro). Malformed marker layouts
// (unpaired markers, multiple blocks, end before start, mismatched pair ids)
// are returned as errors; validation reports them before a run can start.
func FindBlock(steps []Step) (*Block, error) {
	startIdx, endIdx := -1, -1
	for i := range steps {
		switch steps[i].Kind {
		case KindExcelRowStart:
			if startIdx >= 0 {
				return nil, fmt.Errorf("step %d: multiple row start markers (only one block per macro)", i)
			}
			startIdx = i
		case KindExcelRowEnd:
			if endIdx >= 0 {
				return nil, fmt.Errorf("step %d: multiple row end markers (only one block per macro)", i)
			}
			if startIdx < 0 {
				return nil, fmt.Errorf("step %d: row end marker before its row start", i)
			}
			endIdx = i
		}
	}

	if startIdx < 0 && endIdx < 0 {
		return nil, nil
	}
	if startIdx >= 0 && endIdx < 0 {
		return nil, fmt.Errorf("step %d: row start marker has no matching end", startIdx)
	}

	start := &steps[startIdx]
	end := &steps[endIdx]
	if start.PairID != "" && end.PairID != "" && start.PairID != end.PairID {
		return nil, fmt.Errorf("row markers have mismatched pair ids (%q vs %q)", start.PairID, end.PairID)
	}

	mode := start.RepeatMode
	if mode == "" {
		mode = RepeatIncompleteOnly
	}
	status := end.CompletionStatus
	if status == "" {
		status = StatusComplete
	}

	return &Block{
		PairID:           start.PairID,
		StartIndex:       startIdx,
		EndIndex:         endIdx,
		RepeatMode:       mode,
		RepeatCount:      start.RepeatCount,
		StartRow:         start.StartRow,
		EndRow:           start.EndRow,
		CompletionStatus: status,
	}, nil
}

// Row status values persisted to the data source.
const (
	StatusPending  = ""
	StatusComplete = "complete"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)
