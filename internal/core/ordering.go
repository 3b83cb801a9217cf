package core

import (
	"sort"
	"time"
)

// farFuture creation_time 缺失时排在最后
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

func creationKey(w *WorkItem) time.Time {
	if w.CreationTime == nil {
		return farFuture
	}
	return *w.CreationTime
}

// LessWorkItem 排序规则：优先级升序（未设置视为 6）→ creation_time 升序 → id
func LessWorkItem(a, b *WorkItem) bool {
	if pa, pb := a.PriorityValue(), b.PriorityValue(); pa != pb {
		return pa < pb
	}
	ca, cb := creationKey(a), creationKey(b)
	if !ca.Equal(cb) {
		return ca.Before(cb)
	}
	return a.ID < b.ID
}

// SortTasks 原地排序
func SortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return LessWorkItem(&tasks[i].WorkItem, &tasks[j].WorkItem)
	})
}

// SortStories 原地排序（不考虑依赖）
func SortStories(stories []*Story) {
	sort.SliceStable(stories, func(i, j int) bool {
		return LessWorkItem(&stories[i].WorkItem, &stories[j].WorkItem)
	})
}

// TopoSortStories Kahn 算法；每轮就绪集合内按 SortStories 规则取最小者。
// 第二个返回值为无法排序的剩余 Story（存在环）。
func TopoSortStories(stories []*Story) (sorted []*Story, leftover []*Story) {
	byID := make(map[string]*Story, len(stories))
	inDeg := make(map[string]int, len(stories))
	adj := make(map[string][]string)
	for _, s := range stories {
		byID[s.ID] = s
		if _, ok := inDeg[s.ID]; !ok {
			inDeg[s.ID] = 0
		}
	}
	for _, s := range stories {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue
			}
			adj[dep] = append(adj[dep], s.ID)
			inDeg[s.ID]++
		}
	}

	var ready []*Story
	for _, s := range stories {
		if inDeg[s.ID] == 0 {
			ready = append(ready, s)
		}
	}

	sorted = make([]*Story, 0, len(stories))
	for len(ready) > 0 {
		SortStories(ready)
		cur := ready[0]
		ready = ready[1:]
		sorted = append(sorted, cur)
		for _, next := range adj[cur.ID] {
			inDeg[next]--
			if inDeg[next] == 0 {
				ready = append(ready, byID[next])
			}
		}
	}

	if len(sorted) != len(stories) {
		placed := make(map[string]struct{}, len(sorted))
		for _, s := range sorted {
			placed[s.ID] = struct{}{}
		}
		for _, s := range stories {
			if _, ok := placed[s.ID]; !ok {
				leftover = append(leftover, s)
			}
		}
		SortStories(leftover)
	}
	return sorted, leftover
}
