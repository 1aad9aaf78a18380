package runner

import (
	"github.com/blitz-test/blitz/packages/core/model"
)

// group is one module/class routing unit. A group is always handed to
// exactly one worker and never split, which guarantees single
// instantiation of module- and class-scoped fixtures on that worker.
type group struct {
	key   string
	tests []*model.TestRecord
}

// groupTests partitions the selected tests by module/class key, preserving
// catalog order both across groups and within each group.
func groupTests(tests []*model.TestRecord) []*group {
	index := make(map[string]*group)
	var groups []*group
	for _, t := range tests {
		key := t.GroupKey()
		g, ok := index[key]
		if !ok {
			g = &group{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.tests = append(g.tests, t)
	}
	return groups
}

// groupQueue feeds whole groups to workers. Idle workers pull the next
// group off the shared channel, which redistributes remaining work when a
// worker finishes early.
func groupQueue(groups []*group) <-chan *group {
	queue := make(chan *group, len(groups))
	for _, g := range groups {
		queue <- g
	}
	close(queue)
	return queue
}
