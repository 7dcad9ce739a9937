package project

import (
	"fmt"
	"slices"
)

// Record types.
const (
	TypeCheckpoint     = "project.checkpoint"
	TypeCameraUpdate   = "camera.update"
	TypeBoneTransform  = "bone.transform"
	TypeMorphWeight    = "morph.weight"
	TypeMaterialDelete = "material.delete"
	TypeKeyframePaste  = "keyframe.paste"
	TypeKeyframeRemove = "keyframe.remove"
	TypeModelAdd       = "model.add"
)

// undoSuffix marks a record that reverts the edit of the base type.
const undoSuffix = ".undo"

func undoType(typ string) string { return typ + undoSuffix }

// edit is the document-level half of a command. check* report whether the
// document is in the state the move expects; forward and backward assume it
// is.
type edit interface {
	recordType() string
	blocks() (current, previous any)
	checkForward(d *Document) error
	forward(d *Document)
	checkBackward(d *Document) error
	backward(d *Document)
}

func lookupModel(d *Document, name string) (*Model, error) {
	m, ok := d.Models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return m, nil
}

// cameraEdit replaces the camera.
type cameraEdit struct {
	Next Camera
	Prev Camera
}

func (e *cameraEdit) recordType() string   { return TypeCameraUpdate }
func (e *cameraEdit) blocks() (any, any)   { return e.Next, e.Prev }
func (e *cameraEdit) forward(d *Document)  { d.Camera = e.Next }
func (e *cameraEdit) backward(d *Document) { d.Camera = e.Prev }
func (e *cameraEdit) checkForward(d *Document) error {
	if d.Camera != e.Prev {
		return fmt.Errorf("%w: camera changed", ErrNotApplicable)
	}
	return nil
}
func (e *cameraEdit) checkBackward(d *Document) error {
	if d.Camera != e.Next {
		return fmt.Errorf("%w: camera changed", ErrNotApplicable)
	}
	return nil
}

// boneState is the record block of a bone edit.
type boneState struct {
	Model     string    `json:"model"`
	Bone      string    `json:"bone"`
	Transform Transform `json:"transform"`
}

// boneEdit replaces one bone transform.
type boneEdit struct {
	Model string
	Bone  string
	Next  Transform
	Prev  Transform
}

func (e *boneEdit) recordType() string { return TypeBoneTransform }

func (e *boneEdit) blocks() (any, any) {
	return boneState{e.Model, e.Bone, e.Next}, boneState{e.Model, e.Bone, e.Prev}
}

func (e *boneEdit) check(d *Document, want Transform) error {
	m, err := lookupModel(d, e.Model)
	if err != nil {
		return err
	}
	got, ok := m.Bones[e.Bone]
	if !ok {
		return fmt.Errorf("%w: %q in %q", ErrBoneNotFound, e.Bone, e.Model)
	}
	if got != want {
		return fmt.Errorf("%w: bone %q changed", ErrNotApplicable, e.Bone)
	}
	return nil
}

func (e *boneEdit) checkForward(d *Document) error  { return e.check(d, e.Prev) }
func (e *boneEdit) checkBackward(d *Document) error { return e.check(d, e.Next) }
func (e *boneEdit) forward(d *Document)             { d.Models[e.Model].Bones[e.Bone] = e.Next }
func (e *boneEdit) backward(d *Document)            { d.Models[e.Model].Bones[e.Bone] = e.Prev }

// morphState is the record block of a morph edit.
type morphState struct {
	Model  string  `json:"model"`
	Morph  string  `json:"morph"`
	Weight float32 `json:"weight"`
}

// morphEdit replaces one morph weight.
type morphEdit struct {
	Model string
	Morph string
	Next  float32
	Prev  float32
}

func (e *morphEdit) recordType() string { return TypeMorphWeight }

func (e *morphEdit) blocks() (any, any) {
	return morphState{e.Model, e.Morph, e.Next}, morphState{e.Model, e.Morph, e.Prev}
}

func (e *morphEdit) check(d *Document, want float32) error {
	m, err := lookupModel(d, e.Model)
	if err != nil {
		return err
	}
	got, ok := m.Morphs[e.Morph]
	if !ok {
		return fmt.Errorf("%w: %q in %q", ErrMorphNotFound, e.Morph, e.Model)
	}
	if got != want {
		return fmt.Errorf("%w: morph %q changed", ErrNotApplicable, e.Morph)
	}
	return nil
}

func (e *morphEdit) checkForward(d *Document) error  { return e.check(d, e.Prev) }
func (e *morphEdit) checkBackward(d *Document) error { return e.check(d, e.Next) }
func (e *morphEdit) forward(d *Document)             { d.Models[e.Model].Morphs[e.Morph] = e.Next }
func (e *morphEdit) backward(d *Document)            { d.Models[e.Model].Morphs[e.Morph] = e.Prev }

// materialDeleted is the current block of a material delete.
type materialDeleted struct {
	Model string `json:"model"`
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// materialRemoved is the previous block of a material delete.
type materialRemoved struct {
	Model    string   `json:"model"`
	Index    int      `json:"index"`
	Material Material `json:"material"`
}

// materialDeleteEdit removes one material.
type materialDeleteEdit struct {
	Model    string
	Index    int
	Material Material
}

func (e *materialDeleteEdit) recordType() string { return TypeMaterialDelete }

func (e *materialDeleteEdit) blocks() (any, any) {
	return materialDeleted{e.Model, e.Index, e.Material.Name},
		materialRemoved{e.Model, e.Index, e.Material}
}

func (e *materialDeleteEdit) checkForward(d *Document) error {
	m, err := lookupModel(d, e.Model)
	if err != nil {
		return err
	}
	if e.Index < 0 || e.Index >= len(m.Materials) {
		return fmt.Errorf("%w: %d of %d", ErrMaterialIndex, e.Index, len(m.Materials))
	}
	if m.Materials[e.Index] != e.Material {
		return fmt.Errorf("%w: material %d changed", ErrNotApplicable, e.Index)
	}
	return nil
}

func (e *materialDeleteEdit) checkBackward(d *Document) error {
	m, err := lookupModel(d, e.Model)
	if err != nil {
		return err
	}
	if e.Index < 0 || e.Index > len(m.Materials) {
		return fmt.Errorf("%w: %d of %d", ErrMaterialIndex, e.Index, len(m.Materials))
	}
	return nil
}

func (e *materialDeleteEdit) forward(d *Document) {
	m := d.Models[e.Model]
	m.Materials = slices.Delete(m.Materials, e.Index, e.Index+1)
}

func (e *materialDeleteEdit) backward(d *Document) {
	m := d.Models[e.Model]
	m.Materials = slices.Insert(m.Materials, e.Index, e.Material)
}

// keyframeSet is the record block of keyframe edits.
type keyframeSet struct {
	Model     string     `json:"model"`
	Keyframes []Keyframe `json:"keyframes"`
}

// keyRefSet is the current block of a keyframe removal.
type keyRefSet struct {
	Model string   `json:"model"`
	Keys  []KeyRef `json:"keys"`
}

// keyframePasteEdit writes keyframes, replacing any at the same position.
type keyframePasteEdit struct {
	Model       string
	Pasted      []Keyframe
	Overwritten []Keyframe
}

func (e *keyframePasteEdit) recordType() string { return TypeKeyframePaste }

func (e *keyframePasteEdit) blocks() (any, any) {
	return keyframeSet{e.Model, e.Pasted}, keyframeSet{e.Model, e.Overwritten}
}

func (e *keyframePasteEdit) overwritten() map[KeyRef]Keyframe {
	m := make(map[KeyRef]Keyframe, len(e.Overwritten))
	for _, k := range e.Overwritten {
		m[k.Key()] = k
	}
	return m
}

func (e *keyframePasteEdit) checkForward(d *Document) error {
	if _, err := lookupModel(d, e.Model); err != nil {
		return err
	}
	motion := d.Motions[e.Model]
	prev := e.overwritten()
	for _, k := range e.Pasted {
		got, exists := motion.get(k.Key())
		want, replaced := prev[k.Key()]
		if exists != replaced || (exists && got != want) {
			return fmt.Errorf("%w: keyframe %s@%d changed", ErrNotApplicable, k.Bone, k.Frame)
		}
	}
	return nil
}

func (e *keyframePasteEdit) checkBackward(d *Document) error {
	if _, err := lookupModel(d, e.Model); err != nil {
		return err
	}
	motion := d.Motions[e.Model]
	for _, k := range e.Pasted {
		if got, ok := motion.get(k.Key()); !ok || got != k {
			return fmt.Errorf("%w: keyframe %s@%d changed", ErrNotApplicable, k.Bone, k.Frame)
		}
	}
	return nil
}

func (e *keyframePasteEdit) forward(d *Document) {
	motion := d.motion(e.Model)
	for _, k := range e.Pasted {
		motion.put(k)
	}
}

func (e *keyframePasteEdit) backward(d *Document) {
	motion := d.motion(e.Model)
	for _, k := range e.Pasted {
		motion.remove(k.Key())
	}
	for _, k := range e.Overwritten {
		motion.put(k)
	}
	d.pruneMotion(e.Model)
}

// keyframeRemoveEdit deletes keyframes.
type keyframeRemoveEdit struct {
	Model   string
	Removed []Keyframe
}

func (e *keyframeRemoveEdit) recordType() string { return TypeKeyframeRemove }

func (e *keyframeRemoveEdit) blocks() (any, any) {
	keys := make([]KeyRef, len(e.Removed))
	for i, k := range e.Removed {
		keys[i] = k.Key()
	}
	return keyRefSet{e.Model, keys}, keyframeSet{e.Model, e.Removed}
}

func (e *keyframeRemoveEdit) checkForward(d *Document) error {
	if _, err := lookupModel(d, e.Model); err != nil {
		return err
	}
	motion := d.Motions[e.Model]
	for _, k := range e.Removed {
		if got, ok := motion.get(k.Key()); !ok || got != k {
			return fmt.Errorf("%w: keyframe %s@%d changed", ErrNotApplicable, k.Bone, k.Frame)
		}
	}
	return nil
}

func (e *keyframeRemoveEdit) checkBackward(d *Document) error {
	if _, err := lookupModel(d, e.Model); err != nil {
		return err
	}
	motion := d.Motions[e.Model]
	for _, k := range e.Removed {
		if _, ok := motion.get(k.Key()); ok {
			return fmt.Errorf("%w: keyframe %s@%d exists", ErrNotApplicable, k.Bone, k.Frame)
		}
	}
	return nil
}

func (e *keyframeRemoveEdit) forward(d *Document) {
	motion := d.motion(e.Model)
	for _, k := range e.Removed {
		motion.remove(k.Key())
	}
	d.pruneMotion(e.Model)
}

func (e *keyframeRemoveEdit) backward(d *Document) {
	motion := d.motion(e.Model)
	for _, k := range e.Removed {
		motion.put(k)
	}
}

// modelAddEdit adds a model.
type modelAddEdit struct {
	Model *Model
}

func (e *modelAddEdit) recordType() string { return TypeModelAdd }
func (e *modelAddEdit) blocks() (any, any) { return e.Model, nil }

func (e *modelAddEdit) checkForward(d *Document) error {
	if _, ok := d.Models[e.Model.Name]; ok {
		return fmt.Errorf("%w: %q", ErrModelExists, e.Model.Name)
	}
	return nil
}

func (e *modelAddEdit) checkBackward(d *Document) error {
	if _, err := lookupModel(d, e.Model.Name); err != nil {
		return err
	}
	if d.Motions[e.Model.Name].Len() > 0 {
		return fmt.Errorf("%w: model %q has keyframes", ErrNotApplicable, e.Model.Name)
	}
	return nil
}

func (e *modelAddEdit) forward(d *Document) {
	if d.Models == nil {
		d.Models = make(map[string]*Model)
	}
	d.Models[e.Model.Name] = e.Model.clone()
}

func (e *modelAddEdit) backward(d *Document) {
	delete(d.Models, e.Model.Name)
	delete(d.Motions, e.Model.Name)
}
