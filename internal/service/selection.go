package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"answer-judge/internal/model"
)

type SelectionMode string

const (
	SelectAll      SelectionMode = "all"
	SelectRange    SelectionMode = "range"
	SelectSpecific SelectionMode = "specific"
)

// Selection 用户选择哪些条目参与本次 run
type Selection struct {
	Mode  SelectionMode `json:"mode"`
	Start string        `json:"start,omitempty"`
	End   string        `json:"end,omitempty"`
	// 逗号分隔的编号，例如 "2, 5, 7"
	Numbers string `json:"numbers,omitempty"`
}

// Params 写入历史记录的参数描述
func (sel Selection) Params() string {
	switch sel.Mode {
	case SelectRange:
		return fmt.Sprintf("range %s-%s", strings.TrimSpace(sel.Start), strings.TrimSpace(sel.End))
	case SelectSpecific:
		return fmt.Sprintf("specific %s", strings.TrimSpace(sel.Numbers))
	default:
		return "all"
	}
}

// ResolveSelection 在 run 开始前一次性解析出有序的 id 列表
func ResolveSelection(items []model.Item, sel Selection) ([]string, error) {
	if sel.Mode == "" {
		sel.Mode = SelectAll
	}

	eligible := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.HasCandidate() {
			eligible = append(eligible, it)
		}
	}

	var picked []model.Item
	switch sel.Mode {
	case SelectAll:
		picked = eligible

	case SelectRange:
		start, errStart := parsePositive(sel.Start)
		end, errEnd := parsePositive(sel.End)
		if errStart != nil || errEnd != nil {
			return nil, &SelectionError{Mode: sel.Mode, Reason: "range bounds must be positive integers"}
		}
		if start > end {
			return nil, &SelectionError{Mode: sel.Mode, Reason: "range start must not be greater than end"}
		}
		type numbered struct {
			n  int
			it model.Item
		}
		var inRange []numbered
		for _, it := range eligible {
			n, err := strconv.Atoi(it.Number)
			if err != nil || n < start || n > end {
				continue
			}
			inRange = append(inRange, numbered{n: n, it: it})
		}
		sort.SliceStable(inRange, func(i, j int) bool { return inRange[i].n < inRange[j].n })
		for _, nb := range inRange {
			picked = append(picked, nb.it)
		}

	case SelectSpecific:
		wanted := map[string]struct{}{}
		for _, tok := range strings.Split(sel.Numbers, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			wanted[tok] = struct{}{}
		}
		if len(wanted) == 0 {
			return nil, &SelectionError{Mode: sel.Mode, Reason: "no item numbers given"}
		}
		for _, it := range eligible {
			if _, ok := wanted[it.Number]; ok {
				picked = append(picked, it)
			}
		}

	default:
		return nil, &SelectionError{Mode: sel.Mode, Reason: "unknown selection mode"}
	}

	if len(picked) == 0 {
		return nil, &SelectionError{Mode: sel.Mode, Reason: "no eligible items with a candidate answer", Err: ErrNoEligibleItems}
	}

	ids := make([]string, 0, len(picked))
	for _, it := range picked {
		ids = append(ids, it.ID)
	}
	return ids, nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}
