package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"plan-manager-go/internal/core"
	"plan-manager-go/pkg/utils"
)

// State 计划内的当前选择
type State struct {
	CurrentStoryID string `json:"current_story_id,omitempty" yaml:"current_story_id,omitempty"`
	CurrentTaskID  string `json:"current_task_id,omitempty" yaml:"current_task_id,omitempty"`
}

// StateStore 读写 <todo>/<plan_id>/state.yaml
type StateStore struct {
	root string
}

// NewStateStore root 为 todo 目录
func NewStateStore(todoDir string) *StateStore {
	return &StateStore{root: todoDir}
}

func (s *StateStore) path(planID string) string {
	return filepath.Join(s.root, planID, StateFile)
}

// Get 文件不存在时返回空状态
func (s *StateStore) Get(planID string) (State, error) {
	if err := checkPlanID(planID); err != nil {
		return State{}, err
	}
	raw, err := os.ReadFile(s.path(planID))
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state for plan %s: %w", planID, err)
	}
	var st State
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return State{}, core.WrapError(core.KindInconsistency, err, "state file for plan '%s' is corrupt", planID)
	}
	return st, nil
}

// Put 整体覆盖
func (s *StateStore) Put(planID string, st State) error {
	if err := checkPlanID(planID); err != nil {
		return err
	}
	raw, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return utils.WriteFileAtomic(s.path(planID), raw, 0644)
}

// SetCurrentStory 切换 Story 时，不属于新 Story 的当前任务一并清空
func (s *StateStore) SetCurrentStory(planID, storyID string) error {
	st, err := s.Get(planID)
	if err != nil {
		return err
	}
	if st.CurrentStoryID != storyID {
		if sid, _, ok := core.SplitTaskID(st.CurrentTaskID); !ok || sid != storyID {
			st.CurrentTaskID = ""
		}
	}
	st.CurrentStoryID = storyID
	return s.Put(planID, st)
}

// SetCurrentTask 同时把当前 Story 指向任务所属 Story；taskID 为空表示清除
func (s *StateStore) SetCurrentTask(planID, taskID string) error {
	st, err := s.Get(planID)
	if err != nil {
		return err
	}
	st.CurrentTaskID = taskID
	if sid, _, ok := core.SplitTaskID(taskID); ok {
		st.CurrentStoryID = sid
	}
	return s.Put(planID, st)
}
