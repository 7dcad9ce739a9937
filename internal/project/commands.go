package project

import (
	"fmt"
	"sort"

	"github.com/dshills/mmdedit/internal/engine/history"
)

// NewUpdateCameraCommand replaces the camera.
func NewUpdateCameraCommand(p *Project, next Camera) *history.Command {
	return p.command("Update Camera", &cameraEdit{Next: next, Prev: p.doc.Camera})
}

// NewTransformBoneCommand sets the pose of one bone.
func NewTransformBoneCommand(p *Project, model, bone string, next Transform) (*history.Command, error) {
	m, err := lookupModel(&p.doc, model)
	if err != nil {
		return nil, err
	}
	prev, ok := m.Bones[bone]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %q", ErrBoneNotFound, bone, model)
	}
	e := &boneEdit{Model: model, Bone: bone, Next: next, Prev: prev}
	return p.command("Transform Bone "+bone, e), nil
}

// NewUpdateMorphCommand sets the weight of one morph.
func NewUpdateMorphCommand(p *Project, model, morph string, weight float32) (*history.Command, error) {
	m, err := lookupModel(&p.doc, model)
	if err != nil {
		return nil, err
	}
	prev, ok := m.Morphs[morph]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %q", ErrMorphNotFound, morph, model)
	}
	e := &morphEdit{Model: model, Morph: morph, Next: weight, Prev: prev}
	return p.command("Update Morph "+morph, e), nil
}

// NewDeleteMaterialCommand removes the material at index.
func NewDeleteMaterialCommand(p *Project, model string, index int) (*history.Command, error) {
	m, err := lookupModel(&p.doc, model)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(m.Materials) {
		return nil, fmt.Errorf("%w: %d of %d", ErrMaterialIndex, index, len(m.Materials))
	}
	e := &materialDeleteEdit{Model: model, Index: index, Material: m.Materials[index]}
	return p.command("Delete Material "+e.Material.Name, e), nil
}

// NewPasteKeyframesCommand writes keyframes into a model's motion. A later
// keyframe at the same bone and frame wins.
func NewPasteKeyframesCommand(p *Project, model string, keyframes []Keyframe) (*history.Command, error) {
	if _, err := lookupModel(&p.doc, model); err != nil {
		return nil, err
	}
	pasted := dedupe(keyframes)
	motion := p.doc.Motions[model]
	var overwritten []Keyframe
	for _, k := range pasted {
		if old, ok := motion.get(k.Key()); ok {
			overwritten = append(overwritten, old)
		}
	}
	e := &keyframePasteEdit{Model: model, Pasted: pasted, Overwritten: overwritten}
	return p.command(fmt.Sprintf("Paste %d Keyframes", len(pasted)), e), nil
}

// NewRemoveKeyframesCommand deletes keyframes from a model's motion. Keys
// with no keyframe are ignored.
func NewRemoveKeyframesCommand(p *Project, model string, keys []KeyRef) (*history.Command, error) {
	if _, err := lookupModel(&p.doc, model); err != nil {
		return nil, err
	}
	motion := p.doc.Motions[model]
	seen := make(map[KeyRef]bool, len(keys))
	var removed []Keyframe
	for _, ref := range keys {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		if k, ok := motion.get(ref); ok {
			removed = append(removed, k)
		}
	}
	e := &keyframeRemoveEdit{Model: model, Removed: removed}
	return p.command(fmt.Sprintf("Remove %d Keyframes", len(removed)), e), nil
}

// NewAddModelCommand adds a model. The project keeps its own copy.
func NewAddModelCommand(p *Project, m *Model) (*history.Command, error) {
	if m == nil || m.Name == "" {
		return nil, fmt.Errorf("%w: unnamed model", ErrNotApplicable)
	}
	if _, ok := p.doc.Models[m.Name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrModelExists, m.Name)
	}
	return p.command("Add Model "+m.Name, &modelAddEdit{Model: m.clone()}), nil
}

// dedupe keeps the last keyframe per key, ordered by bone then frame.
func dedupe(keyframes []Keyframe) []Keyframe {
	byKey := make(map[KeyRef]Keyframe, len(keyframes))
	for _, k := range keyframes {
		byKey[k.Key()] = k
	}
	out := make([]Keyframe, 0, len(byKey))
	for _, k := range byKey {
		out = append(out, k)
	}
	sortKeyframes(out)
	return out
}

func sortKeyframes(ks []Keyframe) {
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].Bone != ks[j].Bone {
			return ks[i].Bone < ks[j].Bone
		}
		return ks[i].Frame < ks[j].Frame
	})
}
