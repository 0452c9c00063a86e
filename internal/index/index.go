// Package index maintains the topic index: a derived mapping from normalized
// topic tag to the ids of memories carrying it, grouped by owning user. The
// index owns no record content and can always be rebuilt from the record
// store.
package index

import (
	"sort"
	"strings"
	"sync"

	rbt "github.com/emirpasic/gods/trees/redblacktree"

	"github.com/rcliao/convo-memory/internal/model"
)

// Index is the contract the merge engine and query facade depend on.
type Index interface {
	Add(topic, userID, memoryID string) error
	Remove(topic, userID, memoryID string) error
	Lookup(topic, userID string) []string
	LookupPrefix(prefix, userID string) []string
	Rebuild(records []model.MemoryRecord)
}

// owners maps user id to the set of that user's memory ids under one topic.
type owners map[string]map[string]struct{}

// TopicIndex is an in-memory Index held in a tree ordered by topic, so
// prefix lookups visit only the matching key range.
type TopicIndex struct {
	mu     sync.RWMutex
	topics *rbt.Tree // topic -> owners
}

var _ Index = (*TopicIndex)(nil)

// New creates an empty TopicIndex.
func New() *TopicIndex {
	return &TopicIndex{topics: rbt.NewWithStringComparator()}
}

// Add records that userID's memoryID carries topic. Blank topics are ignored.
func (x *TopicIndex) Add(topic, userID, memoryID string) error {
	t := model.NormalizeTopic(topic)
	if t == "" {
		return nil
	}
	if memoryID == "" || userID == "" {
		return model.Invalid("memory id and user id are required for topic %q", t)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	add(x.topics, t, userID, memoryID)
	return nil
}

// Remove drops memoryID from topic. Removing an absent pair is a no-op.
func (x *TopicIndex) Remove(topic, userID, memoryID string) error {
	t := model.NormalizeTopic(topic)

	x.mu.Lock()
	defer x.mu.Unlock()
	v, ok := x.topics.Get(t)
	if !ok {
		return nil
	}
	o := v.(owners)
	ids := o[userID]
	delete(ids, memoryID)
	if len(ids) == 0 {
		delete(o, userID)
	}
	if len(o) == 0 {
		x.topics.Remove(t)
	}
	return nil
}

// Lookup returns the sorted ids of userID's memories tagged with topic, or an
// empty slice. An empty userID returns every user's ids.
func (x *TopicIndex) Lookup(topic, userID string) []string {
	t := model.NormalizeTopic(topic)

	x.mu.RLock()
	defer x.mu.RUnlock()
	union := make(map[string]struct{})
	if v, ok := x.topics.Get(t); ok {
		collect(union, v.(owners), userID)
	}
	return sortedIDs(union)
}

// LookupPrefix is Lookup over every topic starting with prefix.
func (x *TopicIndex) LookupPrefix(prefix, userID string) []string {
	p := model.NormalizeTopic(prefix)

	x.mu.RLock()
	defer x.mu.RUnlock()
	union := make(map[string]struct{})
	var walk func(n *rbt.Node)
	walk = func(n *rbt.Node) {
		if n == nil {
			return
		}
		key := n.Key.(string)
		in := strings.HasPrefix(key, p)
		if key >= p {
			walk(n.Left)
		}
		if in {
			collect(union, n.Value.(owners), userID)
		}
		// Keys past the prefix range sort after it, so only go right while
		// this node is before or inside the range.
		if key < p || in {
			walk(n.Right)
		}
	}
	walk(x.topics.Root)
	return sortedIDs(union)
}

// Topics returns every indexed topic in order.
func (x *TopicIndex) Topics() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, x.topics.Size())
	for _, k := range x.topics.Keys() {
		out = append(out, k.(string))
	}
	return out
}

// Rebuild discards the current contents and indexes records from scratch.
func (x *TopicIndex) Rebuild(records []model.MemoryRecord) {
	fresh := rbt.NewWithStringComparator()
	for _, r := range records {
		for _, topic := range r.Topics {
			if t := model.NormalizeTopic(topic); t != "" {
				add(fresh, t, r.UserID, r.ID)
			}
		}
	}

	x.mu.Lock()
	x.topics = fresh
	x.mu.Unlock()
}

// Snapshot returns a copy of the index as topic -> sorted ids of all users.
func (x *TopicIndex) Snapshot() map[string][]string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string][]string, x.topics.Size())
	it := x.topics.Iterator()
	for it.Next() {
		union := make(map[string]struct{})
		collect(union, it.Value().(owners), "")
		out[it.Key().(string)] = sortedIDs(union)
	}
	return out
}

func add(tree *rbt.Tree, topic, userID, memoryID string) {
	var o owners
	if v, ok := tree.Get(topic); ok {
		o = v.(owners)
	} else {
		o = make(owners)
		tree.Put(topic, o)
	}
	ids, ok := o[userID]
	if !ok {
		ids = make(map[string]struct{})
		o[userID] = ids
	}
	ids[memoryID] = struct{}{}
}

func collect(dst map[string]struct{}, o owners, userID string) {
	if userID != "" {
		for id := range o[userID] {
			dst[id] = struct{}{}
		}
		return
	}
	for _, ids := range o {
		for id := range ids {
			dst[id] = struct{}{}
		}
	}
}

func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
