package project

import (
	"fmt"

	"github.com/dshills/mmdedit/internal/engine/cmdlog"
)

// checkpointState is the current block of a checkpoint record.
type checkpointState struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// editDecoder rebuilds an edit from its record.
type editDecoder func(rec cmdlog.Record) (edit, error)

// NewRegistry returns a registry holding a decoder for every record type
// a project writes, including the undo tag of each edit type.
//
// Each decoded record checks that the recovering document is in the state
// the record expects before applying it; a mismatch is reported as
// ErrDiverged.
func NewRegistry() *cmdlog.Registry[*Document] {
	reg := cmdlog.NewRegistry[*Document]()
	reg.Register(TypeCheckpoint, decodeCheckpoint)
	register(reg, TypeCameraUpdate, decodeCamera)
	register(reg, TypeBoneTransform, decodeBone)
	register(reg, TypeMorphWeight, decodeMorph)
	register(reg, TypeMaterialDelete, decodeMaterialDelete)
	register(reg, TypeKeyframePaste, decodeKeyframePaste)
	register(reg, TypeKeyframeRemove, decodeKeyframeRemove)
	register(reg, TypeModelAdd, decodeModelAdd)
	return reg
}

func register(reg *cmdlog.Registry[*Document], typ string, dec editDecoder) {
	reg.Register(typ, func(rec cmdlog.Record) (cmdlog.Applier[*Document], error) {
		e, err := dec(rec)
		if err != nil {
			return nil, err
		}
		return cmdlog.ApplierFunc[*Document](func(d *Document) error {
			if err := e.checkForward(d); err != nil {
				return fmt.Errorf("%w: %w", ErrDiverged, err)
			}
			e.forward(d)
			return nil
		}), nil
	})
	reg.Register(undoType(typ), func(rec cmdlog.Record) (cmdlog.Applier[*Document], error) {
		e, err := dec(rec)
		if err != nil {
			return nil, err
		}
		return cmdlog.ApplierFunc[*Document](func(d *Document) error {
			if err := e.checkBackward(d); err != nil {
				return fmt.Errorf("%w: %w", ErrDiverged, err)
			}
			e.backward(d)
			return nil
		}), nil
	})
}

// decodeCheckpoint accepts a checkpoint. The snapshot it names is loaded by
// Recover before replay starts.
func decodeCheckpoint(rec cmdlog.Record) (cmdlog.Applier[*Document], error) {
	var cp checkpointState
	if err := rec.Decode(&cp, nil); err != nil {
		return nil, err
	}
	if rec.Seq != 1 {
		return nil, fmt.Errorf("%w: checkpoint at seq %d", cmdlog.ErrCorruptRecord, rec.Seq)
	}
	return cmdlog.ApplierFunc[*Document](func(*Document) error { return nil }), nil
}

func decodeCamera(rec cmdlog.Record) (edit, error) {
	var e cameraEdit
	if err := rec.Decode(&e.Next, &e.Prev); err != nil {
		return nil, err
	}
	return &e, nil
}

func decodeBone(rec cmdlog.Record) (edit, error) {
	var cur, prev boneState
	if err := rec.Decode(&cur, &prev); err != nil {
		return nil, err
	}
	if cur.Model != prev.Model || cur.Bone != prev.Bone {
		return nil, fmt.Errorf("%w: bone blocks disagree", cmdlog.ErrCorruptRecord)
	}
	return &boneEdit{Model: cur.Model, Bone: cur.Bone, Next: cur.Transform, Prev: prev.Transform}, nil
}

func decodeMorph(rec cmdlog.Record) (edit, error) {
	var cur, prev morphState
	if err := rec.Decode(&cur, &prev); err != nil {
		return nil, err
	}
	if cur.Model != prev.Model || cur.Morph != prev.Morph {
		return nil, fmt.Errorf("%w: morph blocks disagree", cmdlog.ErrCorruptRecord)
	}
	return &morphEdit{Model: cur.Model, Morph: cur.Morph, Next: cur.Weight, Prev: prev.Weight}, nil
}

func decodeMaterialDelete(rec cmdlog.Record) (edit, error) {
	var cur materialDeleted
	var prev materialRemoved
	if err := rec.Decode(&cur, &prev); err != nil {
		return nil, err
	}
	if cur.Model != prev.Model || cur.Index != prev.Index || cur.Name != prev.Material.Name {
		return nil, fmt.Errorf("%w: material blocks disagree", cmdlog.ErrCorruptRecord)
	}
	return &materialDeleteEdit{Model: cur.Model, Index: cur.Index, Material: prev.Material}, nil
}

func decodeKeyframePaste(rec cmdlog.Record) (edit, error) {
	var cur, prev keyframeSet
	if err := rec.Decode(&cur, &prev); err != nil {
		return nil, err
	}
	if cur.Model != prev.Model {
		return nil, fmt.Errorf("%w: keyframe blocks disagree", cmdlog.ErrCorruptRecord)
	}
	return &keyframePasteEdit{Model: cur.Model, Pasted: cur.Keyframes, Overwritten: prev.Keyframes}, nil
}

func decodeKeyframeRemove(rec cmdlog.Record) (edit, error) {
	var cur keyRefSet
	var prev keyframeSet
	if err := rec.Decode(&cur, &prev); err != nil {
		return nil, err
	}
	if cur.Model != prev.Model || len(cur.Keys) != len(prev.Keyframes) {
		return nil, fmt.Errorf("%w: keyframe blocks disagree", cmdlog.ErrCorruptRecord)
	}
	for i, k := range prev.Keyframes {
		if k.Key() != cur.Keys[i] {
			return nil, fmt.Errorf("%w: keyframe blocks disagree", cmdlog.ErrCorruptRecord)
		}
	}
	return &keyframeRemoveEdit{Model: cur.Model, Removed: prev.Keyframes}, nil
}

func decodeModelAdd(rec cmdlog.Record) (edit, error) {
	var m Model
	if err := rec.Decode(&m, nil); err != nil {
		return nil, err
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: unnamed model", cmdlog.ErrCorruptRecord)
	}
	if m.Bones == nil {
		m.Bones = make(map[string]Transform)
	}
	if m.Morphs == nil {
		m.Morphs = make(map[string]float32)
	}
	return &modelAddEdit{Model: &m}, nil
}
