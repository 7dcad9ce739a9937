package project

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is the global camera state.
type Camera struct {
	LookAt      mgl32.Vec3 `json:"look_at" yaml:"look_at"`
	Angle       mgl32.Vec3 `json:"angle" yaml:"angle"`
	Distance    float32    `json:"distance" yaml:"distance"`
	Fov         int        `json:"fov" yaml:"fov"`
	Perspective bool       `json:"perspective" yaml:"perspective"`
}

// DefaultCamera returns the camera of a new project.
func DefaultCamera() Camera {
	return Camera{
		LookAt:      mgl32.Vec3{0, 10, 0},
		Distance:    45,
		Fov:         30,
		Perspective: true,
	}
}

// Transform is a bone pose.
type Transform struct {
	Translation mgl32.Vec3 `json:"translation" yaml:"translation"`
	Orientation mgl32.Quat `json:"orientation" yaml:"orientation"`
}

// IdentityTransform returns the rest pose.
func IdentityTransform() Transform {
	return Transform{Orientation: mgl32.QuatIdent()}
}

// Material is a model material.
type Material struct {
	Name      string     `json:"name" yaml:"name"`
	Diffuse   mgl32.Vec4 `json:"diffuse" yaml:"diffuse"`
	Specular  mgl32.Vec3 `json:"specular" yaml:"specular"`
	Shininess float32    `json:"shininess" yaml:"shininess"`
}

// Model is an editable model.
type Model struct {
	Name      string               `json:"name" yaml:"name"`
	Bones     map[string]Transform `json:"bones" yaml:"bones"`
	Morphs    map[string]float32   `json:"morphs" yaml:"morphs"`
	Materials []Material           `json:"materials" yaml:"materials"`
}

// NewModel creates a model with rest-pose bones and zero-weight morphs.
func NewModel(name string, bones, morphs []string, materials ...Material) *Model {
	m := &Model{
		Name:      name,
		Bones:     make(map[string]Transform, len(bones)),
		Morphs:    make(map[string]float32, len(morphs)),
		Materials: append([]Material(nil), materials...),
	}
	for _, b := range bones {
		m.Bones[b] = IdentityTransform()
	}
	for _, n := range morphs {
		m.Morphs[n] = 0
	}
	return m
}

func (m *Model) clone() *Model {
	if m == nil {
		return nil
	}
	c := &Model{
		Name:      m.Name,
		Bones:     make(map[string]Transform, len(m.Bones)),
		Morphs:    make(map[string]float32, len(m.Morphs)),
		Materials: append([]Material(nil), m.Materials...),
	}
	for k, v := range m.Bones {
		c.Bones[k] = v
	}
	for k, v := range m.Morphs {
		c.Morphs[k] = v
	}
	return c
}

// Keyframe is a bone keyframe.
type Keyframe struct {
	Bone        string     `json:"bone" yaml:"bone"`
	Frame       uint32     `json:"frame" yaml:"frame"`
	Translation mgl32.Vec3 `json:"translation" yaml:"translation"`
	Orientation mgl32.Quat `json:"orientation" yaml:"orientation"`
}

// Key returns the keyframe's position in a motion.
func (k Keyframe) Key() KeyRef {
	return KeyRef{Bone: k.Bone, Frame: k.Frame}
}

// KeyRef addresses one keyframe.
type KeyRef struct {
	Bone  string `json:"bone" yaml:"bone"`
	Frame uint32 `json:"frame" yaml:"frame"`
}

// Motion holds the bone keyframes of one model. Empty inner maps are never
// kept.
type Motion struct {
	Bones map[string]map[uint32]Keyframe `json:"bones" yaml:"bones"`
}

func (m *Motion) get(ref KeyRef) (Keyframe, bool) {
	if m == nil {
		return Keyframe{}, false
	}
	k, ok := m.Bones[ref.Bone][ref.Frame]
	return k, ok
}

func (m *Motion) put(k Keyframe) {
	if m.Bones == nil {
		m.Bones = make(map[string]map[uint32]Keyframe)
	}
	frames := m.Bones[k.Bone]
	if frames == nil {
		frames = make(map[uint32]Keyframe)
		m.Bones[k.Bone] = frames
	}
	frames[k.Frame] = k
}

func (m *Motion) remove(ref KeyRef) {
	frames := m.Bones[ref.Bone]
	delete(frames, ref.Frame)
	if len(frames) == 0 {
		delete(m.Bones, ref.Bone)
	}
}

// Len returns the number of keyframes.
func (m *Motion) Len() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, frames := range m.Bones {
		n += len(frames)
	}
	return n
}

func (m *Motion) clone() *Motion {
	if m == nil {
		return nil
	}
	c := &Motion{Bones: make(map[string]map[uint32]Keyframe, len(m.Bones))}
	for bone, frames := range m.Bones {
		cf := make(map[uint32]Keyframe, len(frames))
		for f, k := range frames {
			cf[f] = k
		}
		c.Bones[bone] = cf
	}
	return c
}

// Document is the persistent state of a project.
type Document struct {
	Camera  Camera             `json:"camera" yaml:"camera"`
	Models  map[string]*Model  `json:"models" yaml:"models"`
	Motions map[string]*Motion `json:"motions" yaml:"motions"`
}

func newDocument() Document {
	return Document{
		Camera:  DefaultCamera(),
		Models:  make(map[string]*Model),
		Motions: make(map[string]*Motion),
	}
}

func (d *Document) clone() Document {
	c := Document{
		Camera:  d.Camera,
		Models:  make(map[string]*Model, len(d.Models)),
		Motions: make(map[string]*Motion, len(d.Motions)),
	}
	for k, v := range d.Models {
		c.Models[k] = v.clone()
	}
	for k, v := range d.Motions {
		c.Motions[k] = v.clone()
	}
	return c
}

// motion returns the motion of a model, creating it if needed.
func (d *Document) motion(model string) *Motion {
	m := d.Motions[model]
	if m == nil {
		m = &Motion{}
		if d.Motions == nil {
			d.Motions = make(map[string]*Motion)
		}
		d.Motions[model] = m
	}
	return m
}

// pruneMotion drops a model's motion once it has no keyframes.
func (d *Document) pruneMotion(model string) {
	if m, ok := d.Motions[model]; ok && m.Len() == 0 {
		delete(d.Motions, model)
	}
}
