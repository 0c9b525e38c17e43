package convert

import (
	"fmt"
	"sort"

	"github.com/banshee-data/dataset.export/internal/nuscenes"
)

// timedAnnotation pairs an annotation with its frame timestamp so chains can
// be ordered even though records themselves carry microsecond stamps.
type timedAnnotation struct {
	ann nuscenes.SampleAnnotation
	ts  int64
}

// instanceAcc accumulates one physical object's annotations until Finalize.
// The category is fixed by the first annotation seen for the track.
type instanceAcc struct {
	token         string
	categoryToken string
	anns          []timedAnnotation
}

// InstanceTracker groups converted annotations by track id across the frame
// loop. Slots keep first-seen order, which makes the emitted instance table
// deterministic for a given scene.
type InstanceTracker struct {
	slots   []instanceAcc
	byToken map[string]int
}

func NewInstanceTracker() *InstanceTracker {
	return &InstanceTracker{byToken: make(map[string]int)}
}

// Add files one annotation under its track's instance and returns the
// instance token. The annotation's instance token is set here; prev and next
// stay empty until Finalize, when the full chain is known.
func (t *InstanceTracker) Add(sceneName, trackID, categoryToken string, ann nuscenes.SampleAnnotation, timestampNs int64) string {
	token := nuscenes.InstanceToken(sceneName, trackID)
	idx, ok := t.byToken[token]
	if !ok {
		idx = len(t.slots)
		t.slots = append(t.slots, instanceAcc{token: token, categoryToken: categoryToken})
		t.byToken[token] = idx
	}
	ann.InstanceToken = token
	t.slots[idx].anns = append(t.slots[idx].anns, timedAnnotation{ann: ann, ts: timestampNs})
	return token
}

// Len returns the number of distinct instances seen so far.
func (t *InstanceTracker) Len() int { return len(t.slots) }

// Finalize freezes the accumulated state into instance and annotation
// records. Each instance's annotations are stable-sorted by timestamp (ties
// keep arrival order) and linked prev/next within the instance only, so
// walking next from first_annotation_token visits each annotation exactly
// once in time order. Annotations are emitted grouped by instance.
func (t *InstanceTracker) Finalize() ([]nuscenes.Instance, []nuscenes.SampleAnnotation, error) {
	instances := make([]nuscenes.Instance, 0, len(t.slots))
	var annotations []nuscenes.SampleAnnotation

	for _, slot := range t.slots {
		anns := slot.anns
		sort.SliceStable(anns, func(i, j int) bool { return anns[i].ts < anns[j].ts })
		for i := range anns {
			if i > 0 {
				anns[i].ann.Prev = anns[i-1].ann.Token
			}
			if i < len(anns)-1 {
				anns[i].ann.Next = anns[i+1].ann.Token
			}
		}

		inst, err := nuscenes.NewInstance(slot.token, slot.categoryToken, len(anns),
			anns[0].ann.Token, anns[len(anns)-1].ann.Token)
		if err != nil {
			return nil, nil, fmt.Errorf("finalize instance %s: %w", slot.token, err)
		}
		instances = append(instances, inst)
		for _, ta := range anns {
			annotations = append(annotations, ta.ann)
		}
	}

	return instances, annotations, nil
}
