package service

import (
	"fmt"
	"strings"
	"sync"

	"answer-judge/internal/model"

	"github.com/google/uuid"
)

// ItemStore 当前数据集及其评估状态。所有写入都是按 id 的整条替换
type ItemStore struct {
	mu    sync.RWMutex
	items []model.Item
	index map[string]int
}

func NewItemStore() *ItemStore {
	return &ItemStore{index: map[string]int{}}
}

// Replace 整体替换数据集；缺失 id 的条目自动分配 uuid
func (s *ItemStore) Replace(items []model.Item) ([]model.Item, error) {
	next := make([]model.Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if _, dup := index[it.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		it.Number = strings.TrimSpace(it.Number)
		it.IsEvaluating = false
		index[it.ID] = len(next)
		next = append(next, cloneItem(it))
	}

	s.mu.Lock()
	s.items = next
	s.index = index
	s.mu.Unlock()

	return s.All(), nil
}

func (s *ItemStore) All() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Item, len(s.items))
	for i, it := range s.items {
		out[i] = cloneItem(it)
	}
	return out
}

func (s *ItemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *ItemStore) Get(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Item{}, false
	}
	return cloneItem(s.items[i]), true
}

// Update 按 id 整条替换
func (s *ItemStore) Update(item model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[item.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, item.ID)
	}
	s.items[i] = cloneItem(item)
	return nil
}

// Mutate 在锁内读改写一条记录，fn 拿到的是副本
func (s *ItemStore) Mutate(id string, fn func(*model.Item) error) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	next := cloneItem(s.items[i])
	if err := fn(&next); err != nil {
		return model.Item{}, err
	}
	next.ID = s.items[i].ID
	s.items[i] = next
	return cloneItem(next), nil
}

func (s *ItemStore) Clear() {
	s.mu.Lock()
	s.items = nil
	s.index = map[string]int{}
	s.mu.Unlock()
}

// AdoptSuggestion 采用评审建议答案：候选答案被替换，评估结果清空
func (s *ItemStore) AdoptSuggestion(id string) (model.Item, error) {
	return s.Mutate(id, func(it *model.Item) error {
		if it.IsEvaluating {
			return ErrItemBusy
		}
		if it.EvaluationResult == nil || strings.TrimSpace(it.EvaluationResult.SuggestedAnswer) == "" {
			return ErrNoSuggestion
		}
		it.CandidateAnswer = it.EvaluationResult.SuggestedAnswer
		it.EvaluationResult = nil
		it.IsEvaluating = false
		return nil
	})
}

func cloneItem(it model.Item) model.Item {
	if it.EvaluationResult != nil {
		r := *it.EvaluationResult
		if r.IsAppropriate != nil {
			r.IsAppropriate = model.BoolPtr(*r.IsAppropriate)
		}
		it.EvaluationResult = &r
	}
	return it
}
