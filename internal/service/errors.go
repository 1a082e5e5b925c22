package service

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy 已有批量评估在进行（或单条评估占用中），拒绝而非排队
	ErrBusy = errors.New("an evaluation run is already active")
	// ErrItemBusy 同一条目正在被评估
	ErrItemBusy      = errors.New("item is already being evaluated")
	ErrNoActiveRun   = errors.New("no active evaluation run")
	ErrItemNotFound  = errors.New("item not found")
	ErrNoSuggestion  = errors.New("item has no suggested answer to adopt")
	ErrDuplicateItem = errors.New("duplicate item id")

	// ErrSelection 所有选择校验失败都能用 errors.Is 匹配到它
	ErrSelection       = errors.New("invalid selection")
	ErrNoEligibleItems = errors.New("no eligible items")
)

// SelectionError 选择参数不合法或选不出任何条目；此时不会创建 run
type SelectionError struct {
	Mode   SelectionMode
	Reason string
	Err    error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selection %s: %s", e.Mode, e.Reason)
}

func (e *SelectionError) Is(target error) bool {
	return target == ErrSelection || (e.Err != nil && errors.Is(e.Err, target))
}

func (e *SelectionError) Unwrap() error { return e.Err }
